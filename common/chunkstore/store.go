package chunkstore

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	// ErrNotFound is returned for upload ids the registry does not hold
	ErrNotFound = errors.New("upload not found")

	// ErrIndexOutOfRange is returned when a chunk index is outside [0, total)
	ErrIndexOutOfRange = errors.New("chunk index out of range")

	// ErrIncomplete is returned by Claim when not every chunk has arrived
	ErrIncomplete = errors.New("upload incomplete")
)

// Chunk is one submitted piece of an upload
type Chunk struct {
	UploadID    string
	Index       int
	TotalChunks int
	FileName    string
	FileHash    string
	Data        []byte
}

// PutResult is returned after a chunk is registered
type PutResult struct {
	Received int
	Total    int
}

// Status is a read-only view of an upload entry
type Status struct {
	UploadID  string
	FileName  string
	FileHash  string
	Total     int
	Received  []int
	CreatedAt time.Time
}

// Complete reports whether every index has arrived
func (s *Status) Complete() bool {
	return len(s.Received) == s.Total
}

// Missing returns the indices in [0, total) that have not arrived
func (s *Status) Missing() []int {
	return MissingIndices(s.Total, s.Received)
}

// Store holds in-flight uploads keyed by upload id.
// Mutations of one upload id are serialized; distinct ids proceed in parallel.
type Store interface {
	// Put registers or overwrites a chunk, creating the entry on first arrival
	Put(ctx context.Context, chunk Chunk) (PutResult, error)

	// IsComplete compares received count to the declared total
	IsComplete(ctx context.Context, uploadID string) (bool, error)

	// Status returns the bookkeeping for an upload or ErrNotFound
	Status(ctx context.Context, uploadID string) (*Status, error)

	// Get returns the chunks ordered by index or ErrNotFound
	Get(ctx context.Context, uploadID string) ([][]byte, error)

	// Claim atomically returns the ordered chunks and evicts the entry.
	// It fails with ErrIncomplete and leaves the entry intact when chunks are missing.
	Claim(ctx context.Context, uploadID string) ([][]byte, error)

	// Evict removes an entry; evicting an unknown id is a no-op
	Evict(ctx context.Context, uploadID string) error

	// Sweep evicts entries created before cutoff and returns how many were removed
	Sweep(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

// MissingIndices computes [0, total) minus received
func MissingIndices(total int, received []int) []int {
	seen := make(map[int]struct{}, len(received))
	for _, idx := range received {
		seen[idx] = struct{}{}
	}
	missing := make([]int, 0)
	for i := 0; i < total; i++ {
		if _, ok := seen[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

func sortedIndices(chunks map[int][]byte) []int {
	indices := make([]int, 0, len(chunks))
	for idx := range chunks {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices
}

func validate(chunk Chunk, total int) error {
	if chunk.Index < 0 || chunk.Index >= total {
		return ErrIndexOutOfRange
	}
	return nil
}
