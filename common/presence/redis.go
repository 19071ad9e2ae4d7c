package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lyzr/connected/common/pubsub"
	rediscommon "github.com/lyzr/connected/common/redis"
)

// RedisTracker stores announcements in one hash per scope so every API node
// sees the same snapshot
// Key: presence:{kind}:{id}, field: subscriber id, value: JSON Subscriber
type RedisTracker struct {
	client *rediscommon.Client
	ttl    time.Duration
	logger rediscommon.Logger
	now    func() time.Time
}

// NewRedisTracker creates a redis-backed tracker
func NewRedisTracker(client *rediscommon.Client, ttl time.Duration, logger rediscommon.Logger) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisTracker{client: client, ttl: ttl, logger: logger, now: time.Now}
}

func presenceKey(scope pubsub.Scope) string {
	return "presence:" + scope.String()
}

func (t *RedisTracker) Announce(ctx context.Context, scope pubsub.Scope, subscriberID string, info map[string]any) error {
	data, err := json.Marshal(Subscriber{ID: subscriberID, Info: info, LastSeen: t.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	key := presenceKey(scope)
	pipe := t.client.NewPipeline()
	pipe.SetHash(ctx, key, subscriberID, string(data))
	// the hash outlives its freshest field by one ttl
	pipe.Expire(ctx, key, 2*t.ttl)
	return pipe.Exec(ctx)
}

func (t *RedisTracker) Withdraw(ctx context.Context, scope pubsub.Scope, subscriberID string) error {
	return t.client.DeleteHashFields(ctx, presenceKey(scope), subscriberID)
}

func (t *RedisTracker) Snapshot(ctx context.Context, scope pubsub.Scope) (*Snapshot, error) {
	key := presenceKey(scope)
	fields, err := t.client.GetAllHash(ctx, key)
	if err != nil {
		return nil, err
	}

	cutoff := t.now().Add(-t.ttl)
	var live []Subscriber
	var stale []string
	for id, raw := range fields {
		var sub Subscriber
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			t.logger.Warn("dropping malformed presence entry", "key", key, "subscriber_id", id, "error", err)
			stale = append(stale, id)
			continue
		}
		if sub.LastSeen.Before(cutoff) {
			stale = append(stale, id)
			continue
		}
		live = append(live, sub)
	}

	if len(stale) > 0 {
		if err := t.client.DeleteHashFields(ctx, key, stale...); err != nil {
			t.logger.Warn("failed to prune presence entries", "key", key, "error", err)
		}
	}

	return newSnapshot(scope, live), nil
}
