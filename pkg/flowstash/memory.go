package flowstash

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStash is an in-process Stash for single-instance deployments and
// tests. Expired entries are dropped lazily on access.
type MemoryStash struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

// MemoryOption configures a MemoryStash.
type MemoryOption func(*MemoryStash)

// WithMemoryTimeSource overrides the clock, for tests.
func WithMemoryTimeSource(now func() time.Time) MemoryOption {
	return func(s *MemoryStash) { s.now = now }
}

// NewMemoryStash creates a MemoryStash whose entries expire after ttl.
func NewMemoryStash(ttl time.Duration, opts ...MemoryOption) *MemoryStash {
	s := &MemoryStash{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStash) Put(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{value: value, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStash) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (s *MemoryStash) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStash) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
	return nil
}

var _ Stash = (*MemoryStash)(nil)
