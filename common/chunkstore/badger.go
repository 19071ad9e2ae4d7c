package chunkstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	metaPrefix  = "upload:meta:"
	chunkPrefix = "upload:chunk:"
)

type badgerMeta struct {
	Total     int       `json:"total"`
	FileName  string    `json:"file_name"`
	FileHash  string    `json:"file_hash"`
	CreatedAt time.Time `json:"created_at"`
}

// BadgerStore keeps chunks in an embedded Badger database so that in-flight
// uploads survive a process restart on the same host.
type BadgerStore struct {
	db    *badger.DB
	locks *keyLock
	now   func() time.Time
}

// OpenBadgerStore opens (or creates) a store at path; an empty path runs in memory
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", path, err)
	}
	return NewBadgerStore(db), nil
}

// NewBadgerStore wraps an already opened database
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{
		db:    db,
		locks: newKeyLock(),
		now:   time.Now,
	}
}

func metaKey(id string) []byte {
	return []byte(metaPrefix + id)
}

func chunkKeyPrefix(id string) []byte {
	return []byte(chunkPrefix + id + ":")
}

func chunkKey(id string, index int) []byte {
	return []byte(fmt.Sprintf("%s%s:%08d", chunkPrefix, id, index))
}

func readMeta(txn *badger.Txn, id string) (*badgerMeta, error) {
	item, err := txn.Get(metaKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var meta badgerMeta
	if err := item.Value(func(v []byte) error {
		return json.Unmarshal(v, &meta)
	}); err != nil {
		return nil, fmt.Errorf("failed to decode upload meta: %w", err)
	}
	return &meta, nil
}

// receivedIndices lists stored chunk indices in ascending order
func receivedIndices(txn *badger.Txn, id string) ([]int, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := chunkKeyPrefix(id)
	indices := make([]int, 0)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		raw := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
		idx, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

func (s *BadgerStore) Put(ctx context.Context, chunk Chunk) (PutResult, error) {
	s.locks.Lock(chunk.UploadID)
	defer s.locks.Unlock(chunk.UploadID)

	var result PutResult
	err := s.db.Update(func(txn *badger.Txn) error {
		meta, err := readMeta(txn, chunk.UploadID)
		if errors.Is(err, ErrNotFound) {
			if err := validate(chunk, chunk.TotalChunks); err != nil {
				return err
			}
			meta = &badgerMeta{
				Total:     chunk.TotalChunks,
				FileName:  chunk.FileName,
				FileHash:  chunk.FileHash,
				CreatedAt: s.now(),
			}
			encoded, err := json.Marshal(meta)
			if err != nil {
				return err
			}
			if err := txn.Set(metaKey(chunk.UploadID), encoded); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if err := validate(chunk, meta.Total); err != nil {
			return err
		}
		if err := txn.Set(chunkKey(chunk.UploadID, chunk.Index), chunk.Data); err != nil {
			return err
		}

		indices, err := receivedIndices(txn, chunk.UploadID)
		if err != nil {
			return err
		}
		result = PutResult{Received: len(indices), Total: meta.Total}
		return nil
	})
	if err != nil {
		return PutResult{}, err
	}
	return result, nil
}

func (s *BadgerStore) IsComplete(ctx context.Context, uploadID string) (bool, error) {
	status, err := s.Status(ctx, uploadID)
	if err != nil {
		return false, err
	}
	return status.Complete(), nil
}

func (s *BadgerStore) Status(ctx context.Context, uploadID string) (*Status, error) {
	s.locks.Lock(uploadID)
	defer s.locks.Unlock(uploadID)

	var status *Status
	err := s.db.View(func(txn *badger.Txn) error {
		meta, err := readMeta(txn, uploadID)
		if err != nil {
			return err
		}
		indices, err := receivedIndices(txn, uploadID)
		if err != nil {
			return err
		}
		status = &Status{
			UploadID:  uploadID,
			FileName:  meta.FileName,
			FileHash:  meta.FileHash,
			Total:     meta.Total,
			Received:  indices,
			CreatedAt: meta.CreatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (s *BadgerStore) Get(ctx context.Context, uploadID string) ([][]byte, error) {
	s.locks.Lock(uploadID)
	defer s.locks.Unlock(uploadID)

	var chunks [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := readMeta(txn, uploadID); err != nil {
			return err
		}
		var err error
		chunks, err = readChunks(txn, uploadID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// readChunks relies on the zero-padded index in the key for ordering
func readChunks(txn *badger.Txn, id string) ([][]byte, error) {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	prefix := chunkKeyPrefix(id)
	chunks := make([][]byte, 0)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		data, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk: %w", err)
		}
		chunks = append(chunks, data)
	}
	return chunks, nil
}

func (s *BadgerStore) Claim(ctx context.Context, uploadID string) ([][]byte, error) {
	s.locks.Lock(uploadID)
	defer s.locks.Unlock(uploadID)

	var chunks [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		meta, err := readMeta(txn, uploadID)
		if err != nil {
			return err
		}
		indices, err := receivedIndices(txn, uploadID)
		if err != nil {
			return err
		}
		if len(indices) != meta.Total {
			return ErrIncomplete
		}
		chunks, err = readChunks(txn, uploadID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := s.deleteEntry(uploadID); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (s *BadgerStore) Evict(ctx context.Context, uploadID string) error {
	s.locks.Lock(uploadID)
	defer s.locks.Unlock(uploadID)
	return s.deleteEntry(uploadID)
}

// deleteEntry must be called with the key lock held
func (s *BadgerStore) deleteEntry(uploadID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		prefix := chunkKeyPrefix(uploadID)
		keys := make([][]byte, 0)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return txn.Delete(metaKey(uploadID))
	})
}

func (s *BadgerStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	stale := make([]string, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(metaPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var meta badgerMeta
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &meta)
			}); err != nil {
				continue
			}
			if meta.CreatedAt.Before(cutoff) {
				stale = append(stale, strings.TrimPrefix(string(item.Key()), metaPrefix))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan uploads: %w", err)
	}

	evicted := 0
	for _, id := range stale {
		if err := ctx.Err(); err != nil {
			return evicted, err
		}
		s.locks.Lock(id)
		err := s.db.View(func(txn *badger.Txn) error {
			meta, err := readMeta(txn, id)
			if err != nil {
				return err
			}
			if !meta.CreatedAt.Before(cutoff) {
				return ErrNotFound
			}
			return nil
		})
		if err == nil {
			err = s.deleteEntry(id)
			if err == nil {
				evicted++
			}
		}
		s.locks.Unlock(id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return evicted, err
		}
	}
	return evicted, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
