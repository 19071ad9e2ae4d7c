package presence

import (
	"context"
	"sync"
	"time"

	"github.com/lyzr/connected/common/pubsub"
)

// MemoryTracker keeps announcements in process
type MemoryTracker struct {
	mu     sync.Mutex
	scopes map[pubsub.Scope]map[string]Subscriber
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryTracker creates a tracker whose entries lapse after ttl
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryTracker{
		scopes: make(map[pubsub.Scope]map[string]Subscriber),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (t *MemoryTracker) Announce(ctx context.Context, scope pubsub.Scope, subscriberID string, info map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	subs, ok := t.scopes[scope]
	if !ok {
		subs = make(map[string]Subscriber)
		t.scopes[scope] = subs
	}
	subs[subscriberID] = Subscriber{ID: subscriberID, Info: info, LastSeen: t.now().UTC()}
	return nil
}

func (t *MemoryTracker) Withdraw(ctx context.Context, scope pubsub.Scope, subscriberID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	subs, ok := t.scopes[scope]
	if !ok {
		return nil
	}
	delete(subs, subscriberID)
	if len(subs) == 0 {
		delete(t.scopes, scope)
	}
	return nil
}

// Snapshot drops lapsed entries as a side effect
func (t *MemoryTracker) Snapshot(ctx context.Context, scope pubsub.Scope) (*Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.ttl)
	var live []Subscriber
	for id, sub := range t.scopes[scope] {
		if sub.LastSeen.Before(cutoff) {
			delete(t.scopes[scope], id)
			continue
		}
		live = append(live, sub)
	}
	return newSnapshot(scope, live), nil
}
