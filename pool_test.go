package cachepool

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/unkn0wn-root/cachepool/codec"
	"github.com/unkn0wn-root/cachepool/internal/wire"
	"github.com/unkn0wn-root/cachepool/store/memory"
)

// ==============================
// Basic item flow
// ==============================

func TestSaveGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	p := newTestPool(t, memory.New(memory.Config{Now: clock.Now}), clock, nil)

	it, err := p.GetItem(ctx, "u1")
	if err != nil || it.IsHit() {
		t.Fatalf("expected miss, hit=%v err=%v", it.IsHit(), err)
	}
	if _, ok := it.Get(); ok {
		t.Fatalf("miss item returned a value")
	}

	want := user{ID: "1", Name: "Ada", Tags: []string{"admin"}}
	if ok, err := p.Save(ctx, it.Set(want)); !ok || err != nil {
		t.Fatalf("Save: ok=%v err=%v", ok, err)
	}

	got, err := p.GetItem(ctx, "u1")
	if err != nil || !got.IsHit() {
		t.Fatalf("expected hit, err=%v", err)
	}
	v, _ := got.Get()
	if v.ID != want.ID || v.Name != want.Name || !slices.Equal(v.Tags, want.Tags) {
		t.Fatalf("round trip: got %+v want %+v", v, want)
	}
	if ok, _ := p.HasItem(ctx, "u1"); !ok {
		t.Fatalf("HasItem after Save")
	}
}

func TestZeroValueIsAHit(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	p, err := New(Options[*user]{Store: memory.New(memory.Config{}), Now: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	it, _ := p.NewItem("nil")
	if ok, err := p.Save(ctx, it.Set(nil)); !ok || err != nil {
		t.Fatalf("Save nil: ok=%v err=%v", ok, err)
	}
	got, _ := p.GetItem(ctx, "nil")
	v, ok := got.Get()
	if !ok || v != nil {
		t.Fatalf("cached nil must read back as (nil, true), got (%v, %v)", v, ok)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	p := newTestPool(t, memory.New(memory.Config{}), clock, nil)

	_, _ = p.Save(ctx, mustItem(t, p, "k").Set(user{ID: "k"}))
	for i := 0; i < 2; i++ {
		if ok, err := p.DeleteItem(ctx, "k"); !ok || err != nil {
			t.Fatalf("DeleteItem #%d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, err := p.DeleteItems(ctx, []string{"k", "never", "k"}); !ok || err != nil {
		t.Fatalf("DeleteItems of absent keys: ok=%v err=%v", ok, err)
	}
	if ok, _ := p.HasItem(ctx, "k"); ok {
		t.Fatalf("deleted key still present")
	}
}

func TestClearDropsStoreAndQueue(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	p := newTestPool(t, memory.New(memory.Config{}), clock, nil)

	_, _ = p.Save(ctx, mustItem(t, p, "a").Set(user{ID: "a"}))
	_, _ = p.SaveDeferred(ctx, mustItem(t, p, "b").Set(user{ID: "b"}))
	if !p.Clear(ctx) {
		t.Fatalf("Clear failed")
	}
	if p.Pending() != 0 {
		t.Fatalf("queue survived Clear")
	}
	for _, k := range []string{"a", "b"} {
		if ok, _ := p.HasItem(ctx, k); ok {
			t.Fatalf("%s survived Clear", k)
		}
	}
}

// ==============================
// Expiration
// ==============================

func TestExpirationBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	hooks := &recHooks{}
	// the store never expires anything on its own here; the envelope does
	p := newTestPool(t, memory.New(memory.Config{}), clock, func(o *Options[user]) { o.Hooks = hooks })

	_, _ = p.Save(ctx, mustItem(t, p, "k").Set(user{ID: "k"}).ExpiresAfter(10*time.Second))

	clock.Advance(10*time.Second - time.Nanosecond)
	if it, _ := p.GetItem(ctx, "k"); !it.IsHit() {
		t.Fatalf("expired before its instant")
	}
	clock.Advance(time.Nanosecond)
	if it, _ := p.GetItem(ctx, "k"); it.IsHit() {
		t.Fatalf("alive at its expiration instant")
	}
	if len(hooks.expired) != 1 || hooks.expired[0] != "k" {
		t.Fatalf("ExpiredOnRead hook: %v", hooks.expired)
	}
}

func TestFarFutureExpirationRoundTrips(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	hooks := &recHooks{}
	p := newTestPool(t, memory.New(memory.Config{Now: clock.Now}), clock, func(o *Options[user]) { o.Hooks = hooks })

	far := time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)
	if ok, err := p.Save(ctx, mustItem(t, p, "far").Set(user{ID: "far"}).ExpiresAt(far)); !ok || err != nil {
		t.Fatalf("Save: ok=%v err=%v", ok, err)
	}
	it, err := p.GetItem(ctx, "far")
	if err != nil || !it.IsHit() {
		t.Fatalf("expected hit, hit=%v err=%v", it.IsHit(), err)
	}
	if exp, ok := it.Expiration(); !ok || !exp.Equal(maxExpiration) {
		t.Fatalf("expiration not capped: got %v ok=%v", exp, ok)
	}
	if len(hooks.decode) != 0 {
		t.Fatalf("entry was healed: %v", hooks.decode)
	}

	big := mustItem(t, p, "big").Set(user{ID: "big"})
	if err := big.Expire(int64(300 * 365 * 24 * 3600)); !errors.Is(err, ErrInvalidTTL) {
		t.Fatalf("Expire past the envelope range: expected ErrInvalidTTL, got %v", err)
	}
}

func TestZeroTTLReadsAbsent(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := memory.New(memory.Config{Now: clock.Now})
	p := newTestPool(t, s, clock, nil)

	_, _ = p.Save(ctx, mustItem(t, p, "k").Set(user{ID: "old"}))
	it := mustItem(t, p, "k").Set(user{ID: "new"})
	if err := it.Expire(0); err != nil {
		t.Fatal(err)
	}
	if ok, err := p.Save(ctx, it); !ok || err != nil {
		t.Fatalf("Save expired: ok=%v err=%v", ok, err)
	}
	if ok, _ := p.HasItem(ctx, "k"); ok {
		t.Fatalf("ttl=0 item must read back as absent")
	}
	if s.Len() != 0 {
		t.Fatalf("expired save should delete the key, len=%d", s.Len())
	}
}

func TestHasItemSkipsDecode(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := memory.New(memory.Config{})
	p := newTestPool(t, s, clock, nil)

	// valid envelope, garbage payload: only GetItem should notice
	_, _ = s.Set(ctx, "k", wire.Encode(0, []byte{0xc1}), 0)
	if ok, err := p.HasItem(ctx, "k"); !ok || err != nil {
		t.Fatalf("HasItem: ok=%v err=%v", ok, err)
	}
	if _, err := p.GetItem(ctx, "k"); err == nil {
		t.Fatalf("expected decode error from GetItem")
	}
}

// ==============================
// Deferred queue
// ==============================

func TestDeferredVisibleOnlyToSameInstance(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := memory.New(memory.Config{})
	p1 := newTestPool(t, s, clock, nil)
	p2 := newTestPool(t, s, clock, nil)

	if ok, err := p1.SaveDeferred(ctx, mustItem(t, p1, "d").Set(user{ID: "d"})); !ok || err != nil {
		t.Fatalf("SaveDeferred: ok=%v err=%v", ok, err)
	}
	if it, _ := p1.GetItem(ctx, "d"); !it.IsHit() {
		t.Fatalf("deferred item not visible to its own pool")
	}
	if ok, _ := p1.HasItem(ctx, "d"); !ok {
		t.Fatalf("HasItem ignores the deferred queue")
	}
	if it, _ := p2.GetItem(ctx, "d"); it.IsHit() {
		t.Fatalf("deferred item leaked to another instance before Commit")
	}
	if !p1.Commit(ctx) {
		t.Fatalf("Commit failed")
	}
	if p1.Pending() != 0 {
		t.Fatalf("queue not cleared")
	}

	p3 := newTestPool(t, s, clock, nil)
	it, err := p3.GetItem(ctx, "d")
	if err != nil || !it.IsHit() {
		t.Fatalf("fresh instance after commit: hit=%v err=%v", it.IsHit(), err)
	}
}

func TestDeferredLastWriteWins(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	hooks := &recHooks{}
	p := newTestPool(t, memory.New(memory.Config{}), clock, func(o *Options[user]) { o.Hooks = hooks })

	_, _ = p.SaveDeferred(ctx, mustItem(t, p, "k").Set(user{Name: "first"}))
	_, _ = p.SaveDeferred(ctx, mustItem(t, p, "j").Set(user{Name: "j"}))
	_, _ = p.SaveDeferred(ctx, mustItem(t, p, "k").Set(user{Name: "second"}))
	if p.Pending() != 2 {
		t.Fatalf("pending=%d want 2", p.Pending())
	}
	p.Commit(ctx)

	it, _ := p.GetItem(ctx, "k")
	if v, _ := it.Get(); v.Name != "second" {
		t.Fatalf("last write lost: %q", v.Name)
	}
	if len(hooks.commits) != 1 || hooks.commits[0] != [2]int{2, 0} {
		t.Fatalf("CommitFinished: %v", hooks.commits)
	}
}

func TestDeferredSnapshotIgnoresLaterMutation(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	p := newTestPool(t, memory.New(memory.Config{}), clock, nil)

	it := mustItem(t, p, "k").Set(user{Name: "before"})
	_, _ = p.SaveDeferred(ctx, it)
	it.Set(user{Name: "after"})

	got, _ := p.GetItem(ctx, "k")
	if v, _ := got.Get(); v.Name != "before" {
		t.Fatalf("queued item followed caller mutation: %q", v.Name)
	}
}

func TestDeleteRemovesFromQueue(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	p := newTestPool(t, memory.New(memory.Config{}), clock, nil)

	_, _ = p.SaveDeferred(ctx, mustItem(t, p, "k").Set(user{ID: "k"}))
	_, _ = p.DeleteItem(ctx, "k")
	p.Commit(ctx)
	if ok, _ := p.HasItem(ctx, "k"); ok {
		t.Fatalf("deleted deferred item was committed")
	}
}

func TestPartialCommit(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := newFlakyStore(clock.Now)
	s.fail("bad")
	hooks := &recHooks{}
	p := newTestPool(t, s, clock, func(o *Options[user]) { o.Hooks = hooks })

	for _, k := range []string{"a", "bad", "c"} {
		_, _ = p.SaveDeferred(ctx, mustItem(t, p, k).Set(user{ID: k}))
	}
	if p.Commit(ctx) {
		t.Fatalf("Commit should report failure")
	}
	if s.setCalls != 3 {
		t.Fatalf("commit must attempt every entry, setCalls=%d", s.setCalls)
	}
	if p.Pending() != 0 {
		t.Fatalf("queue must be cleared even on failure")
	}
	for _, k := range []string{"a", "c"} {
		if ok, _ := p.HasItem(ctx, k); !ok {
			t.Fatalf("%s not persisted", k)
		}
	}
	if !slices.Equal(hooks.failed, []string{"set:bad"}) {
		t.Fatalf("StoreFailed: %v", hooks.failed)
	}
	if len(hooks.commits) != 1 || hooks.commits[0] != [2]int{3, 1} {
		t.Fatalf("CommitFinished: %v", hooks.commits)
	}
}

func TestCloseCommits(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := newFlakyStore(clock.Now)
	p := newTestPool(t, s, clock, nil)

	_, _ = p.SaveDeferred(ctx, mustItem(t, p, "ok").Set(user{}))
	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if ok, _ := s.Exists(ctx, "ok"); !ok {
		t.Fatalf("Close did not flush the queue")
	}

	s.fail("bad")
	_, _ = p.SaveDeferred(ctx, mustItem(t, p, "bad").Set(user{}))
	err := p.Close(ctx)
	var ce *CommitError
	if !errors.As(err, &ce) || !slices.Equal(ce.Keys, []string{"bad"}) {
		t.Fatalf("expected CommitError for bad, got %v", err)
	}
	if !errors.Is(err, errBoom) {
		t.Fatalf("CommitError should wrap the store error")
	}
}

// ==============================
// Validation and failures
// ==============================

func TestValidationBeforeStorage(t *testing.T) {
	ctx := context.Background()
	p, err := New(Options[user]{Store: untouchableStore{t}})
	if err != nil {
		t.Fatal(err)
	}
	bad := []string{"", "a:b", "{x}", "a/b", `a\b`, "a@b", "(x)", string(make([]rune, 65))}
	for _, k := range bad {
		if _, err := p.GetItem(ctx, k); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("GetItem(%q): %v", k, err)
		}
		if _, err := p.HasItem(ctx, k); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("HasItem(%q): %v", k, err)
		}
		if _, err := p.DeleteItem(ctx, k); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("DeleteItem(%q): %v", k, err)
		}
		if _, err := p.GetItems(ctx, []string{"fine", k}); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("GetItems with %q: %v", k, err)
		}
		if _, err := p.DeleteItems(ctx, []string{"fine", k}); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("DeleteItems with %q: %v", k, err)
		}
		if _, err := p.Save(ctx, &Item[user]{key: k}); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Save(%q): %v", k, err)
		}
	}
	var ve *ValidationError
	_, err = p.GetItem(ctx, "a:b")
	if !errors.As(err, &ve) || ve.Op != "GetItem" || ve.Field != "key" {
		t.Fatalf("unexpected validation error: %#v", err)
	}
	if _, err := p.Save(ctx, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Save(nil): %v", err)
	}
}

func TestEncodingErrorSurfacesSynchronously(t *testing.T) {
	ctx := context.Background()
	p, err := New(Options[any]{Store: untouchableStore{t}})
	if err != nil {
		t.Fatal(err)
	}
	it, _ := p.NewItem("fn")
	it.Set(func() {})

	var ee *codec.EncodingError
	if _, err := p.Save(ctx, it); !errors.As(err, &ee) {
		t.Fatalf("Save: expected EncodingError, got %v", err)
	}
	if _, err := p.SaveDeferred(ctx, it); !errors.As(err, &ee) {
		t.Fatalf("SaveDeferred: expected EncodingError, got %v", err)
	}
	if p.Pending() != 0 {
		t.Fatalf("unencodable item was queued")
	}
}

func TestCorruptEntrySelfHeals(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := memory.New(memory.Config{})
	hooks := &recHooks{}
	p := newTestPool(t, s, clock, func(o *Options[user]) { o.Hooks = hooks })

	cases := map[string][]byte{
		"foreign":  []byte("not an envelope"),
		"truncate": wire.Encode(0, []byte("abc"))[:10],
		"payload":  wire.Encode(0, []byte{0xc1}),
	}
	for k, raw := range cases {
		_, _ = s.Set(ctx, k, raw, 0)
		_, err := p.GetItem(ctx, k)
		var de *codec.DecodingError
		if !errors.As(err, &de) {
			t.Fatalf("%s: expected DecodingError, got %v", k, err)
		}
		if ok, _ := s.Exists(ctx, k); ok {
			t.Fatalf("%s: corrupt entry not deleted", k)
		}
	}
	if len(hooks.decode) != len(cases) {
		t.Fatalf("DecodeFailed hook calls: %v", hooks.decode)
	}
}

func TestBackendErrors(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := newFlakyStore(clock.Now)
	p := newTestPool(t, s, clock, nil)

	s.failGet = true
	var be *BackendError
	if _, err := p.GetItem(ctx, "k"); !errors.As(err, &be) || be.Op != "GetItem" || !errors.Is(err, errBoom) {
		t.Fatalf("GetItem: %v", err)
	}
	if _, err := p.GetItems(ctx, []string{"a", "b"}); !errors.As(err, &be) {
		t.Fatalf("GetItems: %v", err)
	}
	s.failGet = false

	s.fail("k")
	if ok, err := p.Save(ctx, mustItem(t, p, "k").Set(user{})); ok || err != nil {
		t.Fatalf("Save on failing store: ok=%v err=%v", ok, err)
	}
	s.failDel = true
	if ok, err := p.DeleteItem(ctx, "k"); ok || err != nil {
		t.Fatalf("DeleteItem on failing store: ok=%v err=%v", ok, err)
	}
	s.failClr = true
	if p.Clear(ctx) {
		t.Fatalf("Clear on failing store reported success")
	}
}

func TestGetItemsOrderAndDedupe(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := memory.New(memory.Config{})
	p := newTestPool(t, s, clock, nil)

	_, _ = p.Save(ctx, mustItem(t, p, "a").Set(user{ID: "a"}))
	_, _ = p.SaveDeferred(ctx, mustItem(t, p, "c").Set(user{ID: "c"}))
	_, _ = s.Set(ctx, "bad", []byte("junk"), 0)

	items, err := p.GetItems(ctx, []string{"c", "a", "missing", "a", "bad"})
	var de *codec.DecodingError
	if !errors.As(err, &de) {
		t.Fatalf("expected joined DecodingError, got %v", err)
	}
	var keys []string
	var hits []bool
	for _, it := range items {
		keys = append(keys, it.Key())
		hits = append(hits, it.IsHit())
	}
	if !slices.Equal(keys, []string{"c", "a", "missing", "bad"}) {
		t.Fatalf("order: %v", keys)
	}
	if !slices.Equal(hits, []bool{true, true, false, false}) {
		t.Fatalf("hits: %v", hits)
	}
}

func TestDeriveSharesStore(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := memory.New(memory.Config{})
	p := newTestPool(t, s, clock, func(o *Options[user]) { o.OwnsStore = true })
	tags := Derive[[]string](p, nil)

	it, _ := tags.NewItem("t")
	_, _ = tags.Save(ctx, it.Set([]string{"a", "b"}))
	if ok, _ := s.Exists(ctx, "t"); !ok {
		t.Fatalf("derived pool wrote elsewhere")
	}
	if err := tags.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if tags.ownsStore {
		t.Fatalf("derived pool must not own the store")
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(Options[user]{}); err == nil {
		t.Fatalf("expected error without a store")
	}
}
