package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lyzr/connected/cmd/connected/repository"
	"github.com/lyzr/connected/common/classify"
	"github.com/lyzr/connected/common/logger"
	"github.com/lyzr/connected/common/models"
	"github.com/lyzr/connected/common/pubsub"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *fakeStorage) Put(ctx context.Context, data []byte, contentType, hint string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.objects[hint] = append([]byte(nil), data...)
	s.types[hint] = contentType
	return "https://files.test/" + hint, nil
}

func (s *fakeStorage) only(t *testing.T) []byte {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.objects, 1)
	for _, v := range s.objects {
		return v
	}
	return nil
}

var errStorageDown = errors.New("bucket unavailable")

type fixture struct {
	clock       *clock
	broker      *pubsub.MemoryBroker
	transfers   *repository.MemoryTransferRepository
	sessions    *repository.MemorySessionRepository
	pairing     *PairingService
	distributor *Distributor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.New("error", "text")
	c := newClock()

	f := &fixture{
		clock:     c,
		broker:    pubsub.NewMemoryBroker(log),
		transfers: repository.NewMemoryTransferRepository(),
		sessions:  repository.NewMemorySessionRepository(),
	}
	f.pairing = NewPairingService(f.sessions, f.transfers, DefaultSessionTTL, log)
	f.pairing.now = c.Now
	f.distributor = NewDistributor(f.transfers, f.pairing, f.broker, classify.Default(), DefaultDistributorConfig(), log)
	f.distributor.now = c.Now

	t.Cleanup(func() {
		f.distributor.Close()
		f.broker.Close()
	})
	return f
}

// subscriber records transfer events delivered on one pattern
type subscriber struct {
	mu     sync.Mutex
	events []*models.TransferEvent
}

func (f *fixture) subscribe(t *testing.T, pattern string) *subscriber {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := &subscriber{}
	err := f.broker.Subscribe(ctx, pattern, func(ctx context.Context, topic string, payload []byte) {
		var ev models.TransferEvent
		if json.Unmarshal(payload, &ev) == nil {
			s.mu.Lock()
			s.events = append(s.events, &ev)
			s.mu.Unlock()
		}
	})
	require.NoError(t, err)
	return s
}

func (s *subscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *subscriber) last() *models.TransferEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil
	}
	return s.events[len(s.events)-1]
}
