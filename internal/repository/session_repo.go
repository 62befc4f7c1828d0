package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shared-canvas/whiteboard/internal/model"
)

// DefaultListLimit bounds ListRecent when the caller passes no limit.
const DefaultListLimit = 50

const sessionColumns = `id, connection_id, user_name, remote_addr, status, joined_at, left_at`

// SessionRepository provides the session audit log.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a joined session.
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO sessions (id, connection_id, user_name, remote_addr, status, joined_at, left_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.ConnectionID,
		session.UserName,
		session.RemoteAddr,
		session.Status,
		session.JoinedAt,
		session.LeftAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// MarkLeft records that a session ended at leftAt.
func (r *SessionRepository) MarkLeft(ctx context.Context, id string, leftAt time.Time) error {
	query := `
		UPDATE sessions
		SET status = ?, left_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, model.SessionStatusLeft, leftAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark session left: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}

	return nil
}

// MarkAllLeft closes every session still marked active, returning how many
// rows changed. Used at startup to settle sessions of a previous process.
func (r *SessionRepository) MarkAllLeft(ctx context.Context, leftAt time.Time) (int64, error) {
	query := `
		UPDATE sessions
		SET status = ?, left_at = ?
		WHERE status = ?
	`

	result, err := r.db.ExecContext(ctx, query, model.SessionStatusLeft, leftAt, model.SessionStatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to settle active sessions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// ListRecent returns up to limit sessions, most recently joined first.
func (r *SessionRepository) ListRecent(ctx context.Context, limit int) ([]*model.Session, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY joined_at DESC, rowid DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*model.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// CountActive returns the number of sessions still marked active.
func (r *SessionRepository) CountActive(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM sessions WHERE status = ?`

	var count int
	err := r.db.QueryRowContext(ctx, query, model.SessionStatusActive).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}

	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	session := &model.Session{}
	var remoteAddr sql.NullString
	var leftAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.ConnectionID,
		&session.UserName,
		&remoteAddr,
		&session.Status,
		&session.JoinedAt,
		&leftAt,
	)
	if err != nil {
		return nil, err
	}

	if remoteAddr.Valid {
		session.RemoteAddr = remoteAddr.String
	}
	if leftAt.Valid {
		t := leftAt.Time
		session.LeftAt = &t
	}

	return session, nil
}
