package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lyzr/connected/common/db"
	"github.com/lyzr/connected/common/models"
)

const transferColumns = `id, sender_id, receiver_id, type, content, file_url, file_name, file_size,
	session_key, status, expires_at, metadata, created_at, updated_at`

// TransferRepository handles database operations for transfers
type TransferRepository struct {
	db *db.DB
}

// NewTransferRepository creates a new transfer repository
func NewTransferRepository(db *db.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func scanTransfer(row pgx.Row) (*models.Transfer, error) {
	t := &models.Transfer{}
	err := row.Scan(
		&t.ID,
		&t.SenderID,
		&t.ReceiverID,
		&t.Kind,
		&t.Content,
		&t.FileURL,
		&t.FileName,
		&t.FileSize,
		&t.SessionKey,
		&t.Status,
		&t.ExpiresAt,
		&t.Metadata,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.Metadata == nil {
		t.Metadata = map[string]interface{}{}
	}
	return t, nil
}

func collectTransfers(rows pgx.Rows) ([]*models.Transfer, error) {
	defer rows.Close()

	transfers := make([]*models.Transfer, 0)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// Create inserts a new transfer
func (r *TransferRepository) Create(ctx context.Context, t *models.Transfer) error {
	query := `
		INSERT INTO transfers (id, sender_id, receiver_id, type, content, file_url, file_name, file_size,
			session_key, status, expires_at, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	metadata := t.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	_, err := r.db.Exec(ctx, query,
		t.ID,
		t.SenderID,
		t.ReceiverID,
		string(t.Kind),
		t.Content,
		t.FileURL,
		t.FileName,
		t.FileSize,
		t.SessionKey,
		string(t.Status),
		t.ExpiresAt,
		metadata,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transfer: %w", err)
	}

	return nil
}

// Get retrieves a transfer by id regardless of expiry
func (r *TransferRepository) Get(ctx context.Context, id uuid.UUID) (*models.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1`

	t, err := scanTransfer(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrTransferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	return t, nil
}

// UpdateStatus moves a transfer from one status to another. The change only
// applies while the row is still in from and unexpired.
func (r *TransferRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.TransferStatus, now time.Time) (*models.Transfer, error) {
	query := `
		UPDATE transfers
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2 AND expires_at > $4
		RETURNING ` + transferColumns

	t, err := scanTransfer(r.db.QueryRow(ctx, query, id, string(from), string(to), now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update transfer status: %w", err)
	}
	return t, nil
}

// Delete removes a transfer
func (r *TransferRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM transfers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transfer: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrTransferNotFound
	}
	return nil
}

// ListByIdentity returns unexpired transfers sent or received by userID, newest first
func (r *TransferRepository) ListByIdentity(ctx context.Context, userID string, now time.Time, limit int) ([]*models.Transfer, error) {
	query := `
		SELECT ` + transferColumns + `
		FROM transfers
		WHERE (sender_id = $1 OR receiver_id = $1) AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, userID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	return collectTransfers(rows)
}

// ListBySession returns unexpired transfers scoped to a pairing session, newest first
func (r *TransferRepository) ListBySession(ctx context.Context, sessionKey string, now time.Time, limit int) ([]*models.Transfer, error) {
	query := `
		SELECT ` + transferColumns + `
		FROM transfers
		WHERE session_key = $1 AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, sessionKey, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list session transfers: %w", err)
	}
	return collectTransfers(rows)
}

// DeleteExpired removes the expired transfers sent by senderID
func (r *TransferRepository) DeleteExpired(ctx context.Context, senderID string, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM transfers WHERE sender_id = $1 AND expires_at <= $2`, senderID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired transfers: %w", err)
	}
	return result.RowsAffected(), nil
}
