package pubsub

import (
	"context"
	"fmt"
	"strings"
)

// Broker carries transfer events between the process that changes a transfer
// and the processes holding subscriber connections
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe delivers every message whose topic matches pattern until ctx is done.
	// Handlers for one subscription are called sequentially in publish order.
	Subscribe(ctx context.Context, pattern string, handler MessageHandler) error

	Close() error
}

// MessageHandler processes one delivered message
type MessageHandler func(ctx context.Context, topic string, payload []byte)

const (
	topicRoot = "transfers"

	// AllTopics matches every transfer topic
	AllTopics = topicRoot + ":*"
)

// ScopeKind distinguishes identity and pairing-session topics
type ScopeKind string

const (
	ScopeUser    ScopeKind = "user"
	ScopeSession ScopeKind = "session"
)

// Scope identifies one subscription target
type Scope struct {
	Kind ScopeKind
	ID   string
}

// UserScope returns the identity scope for userID
func UserScope(userID string) Scope {
	return Scope{Kind: ScopeUser, ID: userID}
}

// SessionScope returns the pairing-session scope for key
func SessionScope(key string) Scope {
	return Scope{Kind: ScopeSession, ID: key}
}

// Topic returns the channel name: transfers:{kind}:{id}
func (s Scope) Topic() string {
	return fmt.Sprintf("%s:%s:%s", topicRoot, s.Kind, s.ID)
}

func (s Scope) String() string {
	return string(s.Kind) + ":" + s.ID
}

// ParseTopic is the inverse of Scope.Topic
// Example: "transfers:session:abc" -> {session abc}
func ParseTopic(topic string) (Scope, error) {
	parts := strings.SplitN(topic, ":", 3)
	if len(parts) != 3 || parts[0] != topicRoot || parts[2] == "" {
		return Scope{}, fmt.Errorf("invalid topic: %s", topic)
	}
	kind := ScopeKind(parts[1])
	if kind != ScopeUser && kind != ScopeSession {
		return Scope{}, fmt.Errorf("invalid topic scope: %s", topic)
	}
	return Scope{Kind: kind, ID: parts[2]}, nil
}
