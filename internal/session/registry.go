// Package session tracks which connections have joined the board and derives
// the presence set from them.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shared-canvas/whiteboard/internal/model"
)

// Registry maps connection ids to live sessions. Join order is kept so that
// presence lists are deterministic.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	order    []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*model.Session),
	}
}

// Add creates a session for the connection. The name is trimmed and must not
// be empty; a connection may hold at most one session.
func (r *Registry) Add(connectionID, userName, remoteAddr string) (*model.Session, error) {
	name := strings.TrimSpace(userName)
	if name == "" {
		return nil, model.ErrNameRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[connectionID]; exists {
		return nil, model.ErrAlreadyJoined
	}

	sess := &model.Session{
		ID:           uuid.New().String(),
		ConnectionID: connectionID,
		UserName:     name,
		RemoteAddr:   remoteAddr,
		Status:       model.SessionStatusActive,
		JoinedAt:     time.Now(),
	}
	r.sessions[connectionID] = sess
	r.order = append(r.order, connectionID)
	return sess, nil
}

// Remove destroys the session held by the connection, if any, and returns a
// copy of it marked as left. Stored sessions are never mutated.
func (r *Registry) Remove(connectionID string) (*model.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[connectionID]
	if !exists {
		return nil, false
	}
	delete(r.sessions, connectionID)
	for i, id := range r.order {
		if id == connectionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	now := time.Now()
	left := *sess
	left.Status = model.SessionStatusLeft
	left.LeftAt = &now
	return &left, true
}

// Get returns the session held by the connection.
func (r *Registry) Get(connectionID string) (*model.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[connectionID]
	return sess, ok
}

// ConnectionIDs returns the joined connection ids in join order.
func (r *Registry) ConnectionIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Presence returns the distinct user names of live sessions, ordered by the
// first join that is still connected. Names are not unique across sessions,
// so a name stays present until its last session leaves.
func (r *Registry) Presence() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.order))
	seen := make(map[string]struct{}, len(r.order))
	for _, id := range r.order {
		name := r.sessions[id].UserName
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		users = append(users, name)
	}
	return users
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
