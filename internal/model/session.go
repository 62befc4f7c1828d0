package model

import "time"

// SessionStatus represents the lifecycle state of a board session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusLeft   SessionStatus = "left"
)

// Session is one live connection plus the user name it joined with.
type Session struct {
	ID           string        `json:"id"`
	ConnectionID string        `json:"connectionId"`
	UserName     string        `json:"userName"`
	RemoteAddr   string        `json:"remoteAddr,omitempty"`
	Status       SessionStatus `json:"status"`
	JoinedAt     time.Time     `json:"joinedAt"`
	LeftAt       *time.Time    `json:"leftAt,omitempty"`
}

// Duration returns how long the session has been (or was) joined.
func (s *Session) Duration() time.Duration {
	if s.LeftAt != nil {
		return s.LeftAt.Sub(s.JoinedAt)
	}
	return time.Since(s.JoinedAt)
}
