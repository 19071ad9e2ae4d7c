package chunkstore

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	mu        sync.Mutex
	chunks    map[int][]byte
	total     int
	fileName  string
	fileHash  string
	createdAt time.Time
	evicted   bool
}

// MemoryStore is the default in-process Store.
// The map lock is only held to look entries up; chunk mutation happens under
// the entry's own lock.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source used for entry creation
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty in-memory registry
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lookup returns the locked entry for id, or nil when absent
func (s *MemoryStore) lookup(id string) *entry {
	for {
		s.mu.Lock()
		e, ok := s.entries[id]
		s.mu.Unlock()
		if !ok {
			return nil
		}
		e.mu.Lock()
		if !e.evicted {
			return e
		}
		// lost a race with eviction, look again
		e.mu.Unlock()
	}
}

// Put registers chunk. The first call for an id fixes its declared total.
func (s *MemoryStore) Put(ctx context.Context, chunk Chunk) (PutResult, error) {
	for {
		s.mu.Lock()
		e, ok := s.entries[chunk.UploadID]
		if !ok {
			if err := validate(chunk, chunk.TotalChunks); err != nil {
				s.mu.Unlock()
				return PutResult{}, err
			}
			e = &entry{
				chunks:    make(map[int][]byte, chunk.TotalChunks),
				total:     chunk.TotalChunks,
				fileName:  chunk.FileName,
				fileHash:  chunk.FileHash,
				createdAt: s.now(),
			}
			s.entries[chunk.UploadID] = e
		}
		s.mu.Unlock()

		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}
		if err := validate(chunk, e.total); err != nil {
			e.mu.Unlock()
			return PutResult{}, err
		}
		data := make([]byte, len(chunk.Data))
		copy(data, chunk.Data)
		e.chunks[chunk.Index] = data
		result := PutResult{Received: len(e.chunks), Total: e.total}
		e.mu.Unlock()
		return result, nil
	}
}

func (s *MemoryStore) IsComplete(ctx context.Context, uploadID string) (bool, error) {
	e := s.lookup(uploadID)
	if e == nil {
		return false, ErrNotFound
	}
	defer e.mu.Unlock()
	return len(e.chunks) == e.total, nil
}

func (s *MemoryStore) Status(ctx context.Context, uploadID string) (*Status, error) {
	e := s.lookup(uploadID)
	if e == nil {
		return nil, ErrNotFound
	}
	defer e.mu.Unlock()
	return &Status{
		UploadID:  uploadID,
		FileName:  e.fileName,
		FileHash:  e.fileHash,
		Total:     e.total,
		Received:  sortedIndices(e.chunks),
		CreatedAt: e.createdAt,
	}, nil
}

func (s *MemoryStore) Get(ctx context.Context, uploadID string) ([][]byte, error) {
	e := s.lookup(uploadID)
	if e == nil {
		return nil, ErrNotFound
	}
	defer e.mu.Unlock()
	return ordered(e), nil
}

func (s *MemoryStore) Claim(ctx context.Context, uploadID string) ([][]byte, error) {
	e := s.lookup(uploadID)
	if e == nil {
		return nil, ErrNotFound
	}
	defer e.mu.Unlock()
	if len(e.chunks) != e.total {
		return nil, ErrIncomplete
	}
	chunks := ordered(e)
	s.remove(uploadID, e)
	return chunks, nil
}

func (s *MemoryStore) Evict(ctx context.Context, uploadID string) error {
	e := s.lookup(uploadID)
	if e == nil {
		return nil
	}
	defer e.mu.Unlock()
	s.remove(uploadID, e)
	return nil
}

// Sweep takes each entry's lock before evicting it, so a concurrent Claim
// either completes first or finds the entry gone.
func (s *MemoryStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	evicted := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return evicted, err
		}
		e := s.lookup(id)
		if e == nil {
			continue
		}
		if e.createdAt.Before(cutoff) {
			s.remove(id, e)
			evicted++
		}
		e.mu.Unlock()
	}
	return evicted, nil
}

// Len returns the number of live entries
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	return nil
}

// remove must be called with e.mu held
func (s *MemoryStore) remove(id string, e *entry) {
	e.evicted = true
	e.chunks = nil
	s.mu.Lock()
	if s.entries[id] == e {
		delete(s.entries, id)
	}
	s.mu.Unlock()
}

func ordered(e *entry) [][]byte {
	chunks := make([][]byte, 0, len(e.chunks))
	for _, idx := range sortedIndices(e.chunks) {
		chunks = append(chunks, e.chunks[idx])
	}
	return chunks
}
