package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/connected/common/models"
)

// TransferStore persists transfers. Reads that list filter on expires_at > now.
type TransferStore interface {
	Create(ctx context.Context, t *models.Transfer) error
	Get(ctx context.Context, id uuid.UUID) (*models.Transfer, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.TransferStatus, now time.Time) (*models.Transfer, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByIdentity(ctx context.Context, userID string, now time.Time, limit int) ([]*models.Transfer, error)
	ListBySession(ctx context.Context, sessionKey string, now time.Time, limit int) ([]*models.Transfer, error)
	DeleteExpired(ctx context.Context, senderID string, now time.Time) (int64, error)
}

// SessionStore persists pairing sessions
type SessionStore interface {
	Create(ctx context.Context, s *models.PairingSession) error
	Touch(ctx context.Context, sessionKey string, now time.Time) (*models.PairingSession, error)
	ListByUser(ctx context.Context, userID string, now time.Time) ([]*models.PairingSession, error)
	DeleteExpired(ctx context.Context, userID string, now time.Time) (int64, error)
}
