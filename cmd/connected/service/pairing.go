package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/connected/common/logger"
	"github.com/lyzr/connected/common/models"
)

// DefaultSessionTTL is the fixed lifetime of a pairing session
const DefaultSessionTTL = 24 * time.Hour

// PairingService issues, validates and expires pairing sessions
type PairingService struct {
	sessions  SessionStore
	transfers TransferStore
	ttl       time.Duration
	log       *logger.Logger
	now       func() time.Time
}

// NewPairingService creates a new pairing service
func NewPairingService(sessions SessionStore, transfers TransferStore, ttl time.Duration, log *logger.Logger) *PairingService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &PairingService{
		sessions:  sessions,
		transfers: transfers,
		ttl:       ttl,
		log:       log,
		now:       time.Now,
	}
}

// Create issues a new session for owner. Expiry is fixed here and never extended.
func (s *PairingService) Create(ctx context.Context, owner string, device models.DeviceInfo) (*models.PairingSession, error) {
	if owner == "" {
		return nil, models.ErrForbidden
	}

	key, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}
	if device == nil {
		device = models.DeviceInfo{}
	}

	now := s.now().UTC()
	session := &models.PairingSession{
		ID:         uuid.New(),
		UserID:     owner,
		SessionKey: key.String(),
		DeviceInfo: device,
		LastActive: now,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.log.WithUser(owner).Info("pairing session created",
		"session_id", session.ID,
		"expires_at", session.ExpiresAt,
	)

	return session, nil
}

// Validate returns the session for key and touches last_active.
// Unknown and expired keys are both ErrInvalidSession.
func (s *PairingService) Validate(ctx context.Context, key string) (*models.PairingSession, error) {
	if key == "" {
		return nil, models.ErrInvalidSession
	}

	session, err := s.sessions.Touch(ctx, key, s.now().UTC())
	if errors.Is(err, models.ErrInvalidSession) {
		s.log.Debug("session validation failed")
		return nil, models.ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to validate session: %w", err)
	}
	return session, nil
}

// List returns owner's live sessions, newest first
func (s *PairingService) List(ctx context.Context, owner string) ([]*models.PairingSession, error) {
	sessions, err := s.sessions.ListByUser(ctx, owner, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Cleanup deletes owner's expired sessions and the expired transfers owner sent.
// Nothing belonging to another identity is touched.
func (s *PairingService) Cleanup(ctx context.Context, owner string) (*models.CleanupResult, error) {
	if owner == "" {
		return nil, models.ErrForbidden
	}
	now := s.now().UTC()

	sessions, err := s.sessions.DeleteExpired(ctx, owner, now)
	if err != nil {
		return nil, fmt.Errorf("failed to clean up sessions: %w", err)
	}

	transfers, err := s.transfers.DeleteExpired(ctx, owner, now)
	if err != nil {
		return nil, fmt.Errorf("failed to clean up transfers: %w", err)
	}

	result := &models.CleanupResult{DeletedSessions: sessions, DeletedTransfers: transfers}
	s.log.WithUser(owner).Info("cleanup complete",
		"deleted_sessions", sessions,
		"deleted_transfers", transfers,
	)
	return result, nil
}
