// Package memory is the process-local reference store: a mutex-guarded map
// with lazy expiry. It is deterministic (every write is visible to the next
// read) which makes it the store of choice for tests and single-process use.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/cachepool/store"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero => no TTL
}

// Store is an in-memory store.Store. The zero value is not usable; use New.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

var (
	_ store.Store   = (*Store)(nil)
	_ store.Batcher = (*Store)(nil)
)

type Config struct {
	// Now overrides the clock used for TTLs. Defaults to time.Now.
	Now func() time.Time
}

func New(cfg Config) *Store {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{entries: make(map[string]entry), now: now}
}

// Get returns a copy of the stored bytes. Expired entries are dropped lazily.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if s.expired(e) {
		s.mu.Lock()
		if cur, ok := s.entries[key]; ok && s.expired(cur) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return clone(e.value), true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	e := s.entry(value, ttl)
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return true, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	return ok && !s.expired(e), nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]entry)
	s.mu.Unlock()
	return nil
}

func (s *Store) Close(_ context.Context) error { return nil }

// GetMany reads all keys under a single read lock.
func (s *Store) GetMany(_ context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	s.mu.RLock()
	for _, k := range keys {
		if e, ok := s.entries[k]; ok && !s.expired(e) {
			out[k] = clone(e.value)
		}
	}
	s.mu.RUnlock()
	return out, nil
}

// SetMany applies the whole batch under one lock, so readers observe all of
// it or none of it.
func (s *Store) SetMany(_ context.Context, entries []store.Entry) map[string]error {
	prepared := make([]entry, len(entries))
	for i, e := range entries {
		prepared[i] = s.entry(e.Value, e.TTL)
	}
	s.mu.Lock()
	for i, e := range entries {
		s.entries[e.Key] = prepared[i]
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) DeleteMany(_ context.Context, keys []string) map[string]error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	s.mu.Unlock()
	return nil
}

// Len reports the number of entries held, including expired-but-unread ones.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) entry(value []byte, ttl time.Duration) entry {
	e := entry{value: clone(value)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	return e
}

func (s *Store) expired(e entry) bool {
	return !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}
