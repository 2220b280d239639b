// Package memory provides the key-value stores that hold chunk ledgers and
// conversation history, and the windowed conversation memory built on them.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store is a byte-oriented key-value store with optional expiry.
//
// Get returns nil, nil for a missing or expired key. A ttl of 0 means the
// value never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// InMemoryStore is a process-local Store. Expired entries are invisible
// immediately and swept periodically.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type entry struct {
	value   []byte
	expires time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// NewInMemoryStore returns an empty store and starts its sweeper. Call Close
// to stop the sweeper.
func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{
		data: make(map[string]entry),
		now:  time.Now,
		stop: make(chan struct{}),
	}
	go s.sweep(time.Minute)
	return s
}

// Get implements Store. The returned slice is a copy.
func (s *InMemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]
	if !ok || e.expired(s.now()) {
		return nil, nil
	}
	return append([]byte{}, e.value...), nil
}

// Set implements Store. The value is copied.
func (s *InMemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{value: append([]byte{}, value...)}
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	s.data[key] = e
	return nil
}

// Delete implements Store. Deleting a missing key is not an error.
func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// List implements Store. Keys come back sorted.
func (s *InMemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	keys := make([]string, 0, len(s.data))
	for k, e := range s.data {
		if strings.HasPrefix(k, prefix) && !e.expired(now) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close stops the sweeper. The store stays usable.
func (s *InMemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *InMemoryStore) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *InMemoryStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.data {
		if e.expired(now) {
			delete(s.data, k)
		}
	}
}
