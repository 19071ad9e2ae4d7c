package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/lyzr/connected/common/classify"
	"github.com/lyzr/connected/common/logger"
	"github.com/lyzr/connected/common/models"
	"github.com/lyzr/connected/common/pubsub"
)

const (
	notifyQueueSize = 1024
	publishTimeout  = 5 * time.Second
)

// ErrInvalidTransfer is returned for requests that break the kind/content invariant
var ErrInvalidTransfer = errors.New("invalid transfer")

// DistributorConfig holds transfer lifetimes and list bounds
type DistributorConfig struct {
	EphemeralTTL time.Duration
	ArtifactTTL  time.Duration
	ListLimit    int
	MaxListLimit int
}

// DefaultDistributorConfig keeps text and code for a day and artifacts for a week
func DefaultDistributorConfig() DistributorConfig {
	return DistributorConfig{
		EphemeralTTL: 24 * time.Hour,
		ArtifactTTL:  7 * 24 * time.Hour,
		ListLimit:    50,
		MaxListLimit: 200,
	}
}

type notification struct {
	topics  []string
	payload []byte
	id      uuid.UUID
	event   models.TransferEventType
}

// Distributor persists transfers and fans their change events out to
// identity and session topics. Persistence is synchronous; notification runs
// on one goroutine so every topic sees events in publish order.
type Distributor struct {
	transfers  TransferStore
	sessions   *PairingService
	broker     pubsub.Broker
	classifier *classify.Classifier
	cfg        DistributorConfig
	log        *logger.Logger
	now        func() time.Time

	queue   chan notification
	mu      sync.RWMutex
	closed  bool
	stopped chan struct{}
}

// NewDistributor creates a distributor and starts its notifier
func NewDistributor(transfers TransferStore, sessions *PairingService, broker pubsub.Broker, classifier *classify.Classifier, cfg DistributorConfig, log *logger.Logger) *Distributor {
	defaults := DefaultDistributorConfig()
	if cfg.EphemeralTTL <= 0 {
		cfg.EphemeralTTL = defaults.EphemeralTTL
	}
	if cfg.ArtifactTTL <= 0 {
		cfg.ArtifactTTL = defaults.ArtifactTTL
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = defaults.ListLimit
	}
	if cfg.MaxListLimit < cfg.ListLimit {
		cfg.MaxListLimit = cfg.ListLimit
	}

	d := &Distributor{
		transfers:  transfers,
		sessions:   sessions,
		broker:     broker,
		classifier: classifier,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
		queue:      make(chan notification, notifyQueueSize),
		stopped:    make(chan struct{}),
	}
	go d.notifier()
	return d
}

// Close stops accepting events and waits for queued ones to be published
func (d *Distributor) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.stopped
	return nil
}

// Topics returns every channel an event about t is published to
func Topics(t *models.Transfer) []string {
	topics := make([]string, 0, 3)
	ids := []string{t.SenderID}
	if t.ReceiverID != nil {
		ids = append(ids, *t.ReceiverID)
	}
	for _, id := range lo.Uniq(lo.Compact(ids)) {
		topics = append(topics, pubsub.UserScope(id).Topic())
	}
	if t.SessionKey != nil && *t.SessionKey != "" {
		topics = append(topics, pubsub.SessionScope(*t.SessionKey).Topic())
	}
	return topics
}

// Publish builds a transfer from req, persists it and emits a created event.
// Inline content without a declared kind is classified as code or text.
func (d *Distributor) Publish(ctx context.Context, sender string, req *models.CreateTransferRequest) (*models.Transfer, error) {
	if sender == "" {
		return nil, models.ErrForbidden
	}

	kind := req.Type
	metadata := make(map[string]interface{}, len(req.Metadata)+4)
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	if kind == "" {
		if req.Content == "" {
			return nil, fmt.Errorf("%w: type is required without content", ErrInvalidTransfer)
		}
		result := d.classifier.Classify(req.Content, req.FileName)
		kind = result.Kind()
		for k, v := range result.Metadata() {
			metadata[k] = v
		}
		d.log.Debug("classified transfer content",
			"kind", kind,
			"language", result.Language,
			"confidence", result.Confidence,
		)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidTransfer, kind)
	}

	t := &models.Transfer{
		ID:       uuid.New(),
		SenderID: sender,
		Kind:     kind,
		Status:   models.StatusPending,
		Metadata: metadata,
	}

	if kind.Inline() {
		if strings.TrimSpace(req.Content) == "" {
			return nil, fmt.Errorf("%w: %s transfers need content", ErrInvalidTransfer, kind)
		}
		t.Content = lo.ToPtr(req.Content)
	} else {
		if req.FileURL == "" {
			return nil, fmt.Errorf("%w: %s transfers need file_url", ErrInvalidTransfer, kind)
		}
		t.FileURL = lo.ToPtr(req.FileURL)
		t.FileName = lo.EmptyableToPtr(req.FileName)
		if req.FileSize > 0 {
			t.FileSize = lo.ToPtr(req.FileSize)
		}
	}
	t.ReceiverID = lo.EmptyableToPtr(req.ReceiverID)
	t.SessionKey = lo.EmptyableToPtr(req.SessionKey)

	if err := d.PublishTransfer(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// PublishTransfer persists a fully built transfer and emits a created event.
// A session-scoped transfer requires a live session.
func (d *Distributor) PublishTransfer(ctx context.Context, t *models.Transfer) error {
	if t.SessionKey != nil && *t.SessionKey != "" {
		if _, err := d.sessions.Validate(ctx, *t.SessionKey); err != nil {
			return err
		}
	}

	now := d.now().UTC()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = models.StatusPending
	}
	if t.Metadata == nil {
		t.Metadata = map[string]interface{}{}
	}
	if t.ExpiresAt.IsZero() {
		t.ExpiresAt = now.Add(d.ttlFor(t.Kind))
	}
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := d.transfers.Create(ctx, t); err != nil {
		return fmt.Errorf("failed to persist transfer: %w", err)
	}

	d.log.WithUser(t.SenderID).Info("transfer published",
		"transfer_id", t.ID,
		"type", t.Kind,
		"session_scoped", t.SessionKey != nil,
	)

	d.enqueue(models.EventCreated, t)
	return nil
}

// Get returns a transfer visible to actor, either as a participant or
// through the transfer's live pairing session
func (d *Distributor) Get(ctx context.Context, actor, sessionKey string, id uuid.UUID) (*models.Transfer, error) {
	t, err := d.transfers.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !t.Involves(actor) {
		if sessionKey == "" || t.SessionKey == nil || *t.SessionKey != sessionKey {
			return nil, models.ErrForbidden
		}
		if _, err := d.sessions.Validate(ctx, sessionKey); err != nil {
			return nil, err
		}
	}

	if t.Expired(d.now()) {
		return nil, models.ErrTransferNotFound
	}
	return t, nil
}

// List returns the session's transfers when sessionKey is set, otherwise
// actor's sent and received transfers. Newest first, expired rows excluded.
func (d *Distributor) List(ctx context.Context, actor, sessionKey string, limit int) ([]*models.Transfer, error) {
	if limit <= 0 {
		limit = d.cfg.ListLimit
	}
	if limit > d.cfg.MaxListLimit {
		limit = d.cfg.MaxListLimit
	}
	now := d.now().UTC()

	var (
		transfers []*models.Transfer
		err       error
	)
	if sessionKey != "" {
		if _, err := d.sessions.Validate(ctx, sessionKey); err != nil {
			return nil, err
		}
		transfers, err = d.transfers.ListBySession(ctx, sessionKey, now, limit)
	} else {
		if actor == "" {
			return nil, models.ErrForbidden
		}
		transfers, err = d.transfers.ListByIdentity(ctx, actor, now, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}

	for _, t := range transfers {
		t.Status = t.EffectiveStatus(now)
	}
	return transfers, nil
}

// SetStatus moves a pending transfer to completed or failed and emits an
// updated event. Only the sender or receiver may do this.
func (d *Distributor) SetStatus(ctx context.Context, actor string, id uuid.UUID, status models.TransferStatus) (*models.Transfer, error) {
	t, err := d.transfers.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Involves(actor) {
		return nil, models.ErrForbidden
	}

	now := d.now().UTC()
	current := t.EffectiveStatus(now)
	if !current.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current, status)
	}

	updated, err := d.transfers.UpdateStatus(ctx, id, current, status, now)
	if err != nil {
		return nil, err
	}

	d.log.WithUser(actor).Info("transfer status updated",
		"transfer_id", id,
		"from", current,
		"to", status,
	)

	d.enqueue(models.EventUpdated, updated)
	return updated, nil
}

// Retract deletes a transfer and emits a deleted event. Sender only.
func (d *Distributor) Retract(ctx context.Context, actor string, id uuid.UUID) error {
	t, err := d.transfers.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.SenderID != actor {
		return models.ErrForbidden
	}

	if err := d.transfers.Delete(ctx, id); err != nil {
		return err
	}

	d.log.WithUser(actor).Info("transfer retracted", "transfer_id", id)

	d.enqueue(models.EventDeleted, t)
	return nil
}

func (d *Distributor) ttlFor(kind models.TransferKind) time.Duration {
	if kind.Inline() {
		return d.cfg.EphemeralTTL
	}
	return d.cfg.ArtifactTTL
}

// enqueue hands an event to the notifier. Delivery is best effort: when the
// queue is full the event is dropped and subscribers re-fetch on reconnect.
func (d *Distributor) enqueue(event models.TransferEventType, t *models.Transfer) {
	payload, err := json.Marshal(models.NewTransferEvent(event, t))
	if err != nil {
		d.log.Error("failed to encode transfer event", "transfer_id", t.ID, "error", err)
		return
	}
	n := notification{topics: Topics(t), payload: payload, id: t.ID, event: event}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("distributor closed, dropping event", "transfer_id", t.ID, "event", event)
		return
	}

	select {
	case d.queue <- n:
	default:
		d.log.Warn("notify queue full, dropping event", "transfer_id", t.ID, "event", event)
	}
}

func (d *Distributor) notifier() {
	defer close(d.stopped)

	for n := range d.queue {
		for _, topic := range n.topics {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			if err := d.broker.Publish(ctx, topic, n.payload); err != nil {
				d.log.Warn("failed to publish transfer event",
					"transfer_id", n.id,
					"event", n.event,
					"topic", topic,
					"error", err,
				)
			}
			cancel()
		}
	}
}
