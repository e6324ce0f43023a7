package cachepool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/cachepool/store"
	"github.com/unkn0wn-root/cachepool/store/memory"
)

type user struct {
	ID   string   `json:"id" msgpack:"id"`
	Name string   `json:"name" msgpack:"name"`
	Tags []string `json:"tags" msgpack:"tags"`
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var errBoom = errors.New("boom")

// flakyStore wraps a memory store and fails operations on demand. It does not
// implement store.Batcher, so batches go through the per-key methods.
type flakyStore struct {
	mem      *memory.Store
	mu       sync.Mutex
	failSet  map[string]bool
	failGet  bool
	failDel  bool
	failClr  bool
	setCalls int
}

var _ store.Store = (*flakyStore)(nil)

func newFlakyStore(now func() time.Time) *flakyStore {
	return &flakyStore{mem: memory.New(memory.Config{Now: now}), failSet: map[string]bool{}}
}

func (s *flakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.failGet {
		return nil, false, errBoom
	}
	return s.mem.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key string, v []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	s.setCalls++
	fail := s.failSet[key]
	s.mu.Unlock()
	if fail {
		return false, errBoom
	}
	return s.mem.Set(ctx, key, v, ttl)
}

func (s *flakyStore) Delete(ctx context.Context, key string) error {
	if s.failDel {
		return errBoom
	}
	return s.mem.Delete(ctx, key)
}

func (s *flakyStore) Clear(ctx context.Context) error {
	if s.failClr {
		return errBoom
	}
	return s.mem.Clear(ctx)
}

func (s *flakyStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.mem.Exists(ctx, key)
}

func (s *flakyStore) Close(ctx context.Context) error { return s.mem.Close(ctx) }

func (s *flakyStore) fail(keys ...string) {
	s.mu.Lock()
	for _, k := range keys {
		s.failSet[k] = true
	}
	s.mu.Unlock()
}

// untouchableStore fails the test on any access. It proves validation runs
// before storage is touched.
type untouchableStore struct{ t *testing.T }

func (s untouchableStore) Get(context.Context, string) ([]byte, bool, error) {
	s.t.Fatalf("store.Get called")
	return nil, false, nil
}

func (s untouchableStore) Set(context.Context, string, []byte, time.Duration) (bool, error) {
	s.t.Fatalf("store.Set called")
	return false, nil
}

func (s untouchableStore) Delete(context.Context, string) error {
	s.t.Fatalf("store.Delete called")
	return nil
}

func (s untouchableStore) Exists(context.Context, string) (bool, error) {
	s.t.Fatalf("store.Exists called")
	return false, nil
}

func (s untouchableStore) Clear(context.Context) error {
	s.t.Fatalf("store.Clear called")
	return nil
}

func (s untouchableStore) Close(context.Context) error { return nil }

type recHooks struct {
	mu      sync.Mutex
	expired []string
	decode  []string
	failed  []string
	commits [][2]int
}

func (h *recHooks) ExpiredOnRead(k string) {
	h.mu.Lock()
	h.expired = append(h.expired, k)
	h.mu.Unlock()
}

func (h *recHooks) DecodeFailed(k string, _ error) {
	h.mu.Lock()
	h.decode = append(h.decode, k)
	h.mu.Unlock()
}

func (h *recHooks) StoreFailed(op, k string, _ error) {
	h.mu.Lock()
	h.failed = append(h.failed, op+":"+k)
	h.mu.Unlock()
}

func (h *recHooks) CommitFinished(total, failed int) {
	h.mu.Lock()
	h.commits = append(h.commits, [2]int{total, failed})
	h.mu.Unlock()
}

func newTestPool(t *testing.T, s store.Store, clock *fakeClock, mod func(*Options[user])) *Pool[user] {
	t.Helper()
	opts := Options[user]{Store: s, Now: clock.Now}
	if mod != nil {
		mod(&opts)
	}
	p, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func mustItem[V any](t *testing.T, p *Pool[V], key string) *Item[V] {
	t.Helper()
	it, err := p.NewItem(key)
	if err != nil {
		t.Fatalf("NewItem(%q): %v", key, err)
	}
	return it
}
