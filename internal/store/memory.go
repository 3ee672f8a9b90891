package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory Store for tests and local dev.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memRecord
	lists   map[string][][]byte
	sets    map[string]map[string]struct{}
}

type memRecord struct {
	value     []byte
	version   int64
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]memRecord),
		lists:   make(map[string][][]byte),
		sets:    make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) live(key string) (memRecord, bool) {
	rec, ok := s.records[key]
	if !ok {
		return memRecord{}, false
	}
	if !rec.expiresAt.IsZero() && time.Now().After(rec.expiresAt) {
		delete(s.records, key)
		return memRecord{}, false
	}
	return rec, true
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.live(key)
	if !ok {
		return nil, ErrNotFound
	}
	value := make([]byte, len(rec.value))
	copy(value, rec.value)
	return &Record{Value: value, Version: rec.version}, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	s.records[key] = memRecord{value: cloneBytes(value), version: 1, expiresAt: exp}
	return nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, key string, expectedVersion int64, value []byte) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.live(key)
	if expectedVersion == 0 {
		if ok {
			return nil, ErrVersionConflict
		}
		s.records[key] = memRecord{value: cloneBytes(value), version: 1}
		return &Record{Value: cloneBytes(value), Version: 1}, nil
	}
	if !ok {
		return nil, ErrNotFound
	}
	if rec.version != expectedVersion {
		return nil, ErrVersionConflict
	}
	next := memRecord{value: cloneBytes(value), version: rec.version + 1, expiresAt: rec.expiresAt}
	s.records[key] = next
	return &Record{Value: cloneBytes(value), Version: next.version}, nil
}

func (s *MemoryStore) Append(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lists[key] = append(s.lists[key], cloneBytes(value))
	return nil
}

func (s *MemoryStore) List(_ context.Context, key string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.lists[key]
	out := make([][]byte, len(src))
	for i, v := range src {
		out[i] = cloneBytes(v)
	}
	return out, nil
}

func (s *MemoryStore) Trim(_ context.Context, key string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[key]
	if n >= len(list) {
		delete(s.lists, key)
		return nil
	}
	s.lists[key] = append([][]byte(nil), list[n:]...)
	return nil
}

func (s *MemoryStore) AddMember(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (s *MemoryStore) Members(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.sets[key]
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
