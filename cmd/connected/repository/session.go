package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lyzr/connected/common/db"
	"github.com/lyzr/connected/common/models"
)

const sessionColumns = `id, user_id, session_key, device_info, last_active, created_at, expires_at`

// SessionRepository handles database operations for pairing sessions
type SessionRepository struct {
	db *db.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *db.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSession(row pgx.Row) (*models.PairingSession, error) {
	s := &models.PairingSession{}
	var device map[string]interface{}
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.SessionKey,
		&device,
		&s.LastActive,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	s.DeviceInfo = models.DeviceInfo(device)
	if s.DeviceInfo == nil {
		s.DeviceInfo = models.DeviceInfo{}
	}
	return s, nil
}

// Create inserts a new session
func (r *SessionRepository) Create(ctx context.Context, s *models.PairingSession) error {
	query := `
		INSERT INTO user_sessions (id, user_id, session_key, device_info, last_active, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	device := map[string]interface{}(s.DeviceInfo)
	if device == nil {
		device = map[string]interface{}{}
	}

	_, err := r.db.Exec(ctx, query,
		s.ID,
		s.UserID,
		s.SessionKey,
		device,
		s.LastActive,
		s.CreatedAt,
		s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Touch validates and marks a session active in one statement.
// Unknown and expired keys both return ErrInvalidSession.
func (r *SessionRepository) Touch(ctx context.Context, sessionKey string, now time.Time) (*models.PairingSession, error) {
	query := `
		UPDATE user_sessions
		SET last_active = $2
		WHERE session_key = $1 AND expires_at > $2
		RETURNING ` + sessionColumns

	s, err := scanSession(r.db.QueryRow(ctx, query, sessionKey, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	return s, nil
}

// ListByUser returns the user's unexpired sessions, newest first
func (r *SessionRepository) ListByUser(ctx context.Context, userID string, now time.Time) ([]*models.PairingSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM user_sessions
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.PairingSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeleteExpired removes the user's expired sessions
func (r *SessionRepository) DeleteExpired(ctx context.Context, userID string, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM user_sessions WHERE user_id = $1 AND expires_at <= $2`, userID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected(), nil
}
