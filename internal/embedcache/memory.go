package embedcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxEntries bounds the in-process cache.
const DefaultMaxEntries = 10000

// DefaultTTL expires stale vectors even under the entry bound.
const DefaultTTL = 24 * time.Hour

type memEntry struct {
	vec     []float32
	addedAt time.Time
}

// MemoryStore is a TTL- and size-bounded in-process backend. Eviction is
// FIFO by insertion order once maxEntries is reached; expired entries
// are dropped lazily on read.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]memEntry
	order      []string // insertion order for FIFO eviction
	maxEntries int
	ttl        time.Duration
	evictions  atomic.Int64
	now        func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries:    make(map[string]memEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]float32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.now().Sub(e.addedAt) > s.ttl {
		delete(s.entries, key)
		s.evictions.Add(1)
		return nil, false
	}
	return e.vec, true
}

func (s *MemoryStore) Set(_ context.Context, key string, vec []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists {
		for len(s.entries) >= s.maxEntries && len(s.order) > 0 {
			oldest := s.order[0]
			s.order = s.order[1:]
			if _, ok := s.entries[oldest]; ok {
				delete(s.entries, oldest)
				s.evictions.Add(1)
			}
		}
		s.order = append(s.order, key)
	}
	s.entries[key] = memEntry{vec: vec, addedAt: s.now()}
}

func (s *MemoryStore) Entries(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Evictions() int64 {
	return s.evictions.Load()
}
