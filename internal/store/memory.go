package store

import (
	"context"
	"strconv"
	"sync"
)

// memoryStore keeps documents in-process. Used by tests and dry runs.
type memoryStore struct {
	mu   sync.Mutex
	docs map[string]memoryDoc
}

type memoryDoc struct {
	data []byte
	ver  uint64
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memoryStore{docs: map[string]memoryDoc{}}
}

func (s *memoryStore) Load(ctx context.Context, path string) ([]byte, Version, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[path]
	if !ok {
		return nil, "", ErrNotFound
	}
	cp := append([]byte(nil), d.data...)
	return cp, Version(strconv.FormatUint(d.ver, 10)), nil
}

func (s *memoryStore) Save(ctx context.Context, path string, data []byte, ver Version, note string) (Version, error) {
	_ = ctx
	_ = note
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, exists := s.docs[path]
	if ver == "" {
		if exists {
			return "", ErrConflict
		}
		s.docs[path] = memoryDoc{data: append([]byte(nil), data...), ver: 1}
		return Version("1"), nil
	}
	if !exists || Version(strconv.FormatUint(cur.ver, 10)) != ver {
		return "", ErrConflict
	}
	next := cur.ver + 1
	s.docs[path] = memoryDoc{data: append([]byte(nil), data...), ver: next}
	return Version(strconv.FormatUint(next, 10)), nil
}

func (s *memoryStore) Close() error { return nil }
