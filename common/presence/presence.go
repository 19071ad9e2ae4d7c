// Package presence tracks which subscribers are currently connected under a
// scope. The data is advisory: transfer delivery never consults it.
package presence

import (
	"context"
	"sort"
	"time"

	"github.com/lyzr/connected/common/pubsub"
)

// DefaultTTL is how long an announcement stays visible without a refresh
const DefaultTTL = 30 * time.Second

// Subscriber is one announced device
type Subscriber struct {
	ID       string         `json:"id"`
	Info     map[string]any `json:"info,omitempty"`
	LastSeen time.Time      `json:"last_seen"`
}

// Snapshot is the set of live subscribers under one scope
type Snapshot struct {
	Type        string       `json:"type"`
	Scope       string       `json:"scope"`
	Subscribers []Subscriber `json:"subscribers"`
	Count       int          `json:"count"`
}

// Tracker records liveness announcements per scope
type Tracker interface {
	Announce(ctx context.Context, scope pubsub.Scope, subscriberID string, info map[string]any) error
	Withdraw(ctx context.Context, scope pubsub.Scope, subscriberID string) error
	Snapshot(ctx context.Context, scope pubsub.Scope) (*Snapshot, error)
}

func newSnapshot(scope pubsub.Scope, subs []Subscriber) *Snapshot {
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	if subs == nil {
		subs = []Subscriber{}
	}
	return &Snapshot{
		Type:        "presence",
		Scope:       scope.String(),
		Subscribers: subs,
		Count:       len(subs),
	}
}
