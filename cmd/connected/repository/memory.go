package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/connected/common/models"
)

// MemoryTransferRepository keeps transfers in process (STORE_BACKEND=memory)
type MemoryTransferRepository struct {
	mu        sync.RWMutex
	transfers map[uuid.UUID]*models.Transfer
}

// NewMemoryTransferRepository creates an empty in-memory transfer store
func NewMemoryTransferRepository() *MemoryTransferRepository {
	return &MemoryTransferRepository{transfers: make(map[uuid.UUID]*models.Transfer)}
}

func cloneTransfer(t *models.Transfer) *models.Transfer {
	c := *t
	c.Metadata = make(map[string]interface{}, len(t.Metadata))
	for k, v := range t.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

func (r *MemoryTransferRepository) Create(ctx context.Context, t *models.Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers[t.ID] = cloneTransfer(t)
	return nil
}

func (r *MemoryTransferRepository) Get(ctx context.Context, id uuid.UUID) (*models.Transfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transfers[id]
	if !ok {
		return nil, models.ErrTransferNotFound
	}
	return cloneTransfer(t), nil
}

func (r *MemoryTransferRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.TransferStatus, now time.Time) (*models.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[id]
	if !ok || t.Status != from || t.Expired(now) {
		return nil, models.ErrInvalidTransition
	}
	t.Status = to
	t.UpdatedAt = now
	return cloneTransfer(t), nil
}

func (r *MemoryTransferRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.transfers[id]; !ok {
		return models.ErrTransferNotFound
	}
	delete(r.transfers, id)
	return nil
}

func (r *MemoryTransferRepository) list(now time.Time, limit int, match func(*models.Transfer) bool) []*models.Transfer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Transfer, 0)
	for _, t := range r.transfers {
		if !t.Expired(now) && match(t) {
			out = append(out, cloneTransfer(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *MemoryTransferRepository) ListByIdentity(ctx context.Context, userID string, now time.Time, limit int) ([]*models.Transfer, error) {
	return r.list(now, limit, func(t *models.Transfer) bool { return t.Involves(userID) }), nil
}

func (r *MemoryTransferRepository) ListBySession(ctx context.Context, sessionKey string, now time.Time, limit int) ([]*models.Transfer, error) {
	return r.list(now, limit, func(t *models.Transfer) bool {
		return t.SessionKey != nil && *t.SessionKey == sessionKey
	}), nil
}

func (r *MemoryTransferRepository) DeleteExpired(ctx context.Context, senderID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.transfers {
		if t.SenderID == senderID && t.Expired(now) {
			delete(r.transfers, id)
			n++
		}
	}
	return n, nil
}

// MemorySessionRepository keeps pairing sessions in process
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.PairingSession // by session key
}

// NewMemorySessionRepository creates an empty in-memory session store
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]*models.PairingSession)}
}

func cloneSession(s *models.PairingSession) *models.PairingSession {
	c := *s
	c.DeviceInfo = make(models.DeviceInfo, len(s.DeviceInfo))
	for k, v := range s.DeviceInfo {
		c.DeviceInfo[k] = v
	}
	return &c
}

func (r *MemorySessionRepository) Create(ctx context.Context, s *models.PairingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.SessionKey] = cloneSession(s)
	return nil
}

func (r *MemorySessionRepository) Touch(ctx context.Context, sessionKey string, now time.Time) (*models.PairingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionKey]
	if !ok || !s.Valid(now) {
		return nil, models.ErrInvalidSession
	}
	s.LastActive = now
	return cloneSession(s), nil
}

func (r *MemorySessionRepository) ListByUser(ctx context.Context, userID string, now time.Time) ([]*models.PairingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.PairingSession, 0)
	for _, s := range r.sessions {
		if s.UserID == userID && s.Valid(now) {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemorySessionRepository) DeleteExpired(ctx context.Context, userID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for key, s := range r.sessions {
		if s.UserID == userID && !s.Valid(now) {
			delete(r.sessions, key)
			n++
		}
	}
	return n, nil
}
