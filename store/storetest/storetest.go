// Package storetest is the compliance suite every store.Store implementation
// runs from its own tests.
package storetest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/unkn0wn-root/cachepool/store"
)

// Harness builds fresh stores for the suite.
type Harness struct {
	// New returns an empty store. The suite closes it.
	New func(t *testing.T) store.Store
	// Advance moves the store's notion of time forward by d.
	// Stores on the wall clock can simply sleep.
	Advance func(t *testing.T, d time.Duration)
	// TTL used by the expiry checks; defaults to one second.
	TTL time.Duration
}

// Run runs the compliance suite against h.
func Run(t *testing.T, h Harness) {
	t.Helper()
	ttl := h.TTL
	if ttl <= 0 {
		ttl = time.Second
	}
	ctx := context.Background()

	fresh := func(t *testing.T) store.Store {
		t.Helper()
		s := h.New(t)
		t.Cleanup(func() { _ = s.Close(ctx) })
		return s
	}

	mustSet := func(t *testing.T, s store.Store, k string, v []byte, ttl time.Duration) {
		t.Helper()
		ok, err := s.Set(ctx, k, v, ttl)
		if err != nil || !ok {
			t.Fatalf("Set(%q): ok=%v err=%v", k, ok, err)
		}
	}

	t.Run("SetAndGet", func(t *testing.T) {
		s := fresh(t)
		mustSet(t, s, "k", []byte("v"), 0)
		got, ok, err := s.Get(ctx, "k")
		if err != nil || !ok || string(got) != "v" {
			t.Fatalf("Get: got=%q ok=%v err=%v", got, ok, err)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		s := fresh(t)
		got, ok, err := s.Get(ctx, "nonexistent")
		if err != nil || ok || got != nil {
			t.Fatalf("expected clean miss, got=%q ok=%v err=%v", got, ok, err)
		}
	})

	t.Run("ByteTransparent", func(t *testing.T) {
		s := fresh(t)
		in := []byte{0, 0xff, 'C', 'P', 0, 1, 2}
		mustSet(t, s, "bin", in, 0)
		got, ok, err := s.Get(ctx, "bin")
		if err != nil || !ok || !bytes.Equal(got, in) {
			t.Fatalf("bytes changed: got=%x want=%x ok=%v err=%v", got, in, ok, err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := fresh(t)
		mustSet(t, s, "ow", []byte("v1"), 0)
		mustSet(t, s, "ow", []byte("v2"), 0)
		got, ok, _ := s.Get(ctx, "ow")
		if !ok || string(got) != "v2" {
			t.Fatalf("expected v2 after overwrite, got %q ok=%v", got, ok)
		}
	})

	t.Run("DeleteAndDeleteAbsent", func(t *testing.T) {
		s := fresh(t)
		mustSet(t, s, "del", []byte("x"), 0)
		if err := s.Delete(ctx, "del"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, ok, _ := s.Get(ctx, "del"); ok {
			t.Fatalf("expected miss after Delete")
		}
		if err := s.Delete(ctx, "del"); err != nil {
			t.Fatalf("second Delete should be a no-op, got %v", err)
		}
		if err := s.Delete(ctx, "never-existed"); err != nil {
			t.Fatalf("Delete of absent key should not error, got %v", err)
		}
	})

	t.Run("Exists", func(t *testing.T) {
		s := fresh(t)
		if ok, err := s.Exists(ctx, "e"); err != nil || ok {
			t.Fatalf("Exists before Set: ok=%v err=%v", ok, err)
		}
		mustSet(t, s, "e", []byte("1"), 0)
		if ok, err := s.Exists(ctx, "e"); err != nil || !ok {
			t.Fatalf("Exists after Set: ok=%v err=%v", ok, err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		s := fresh(t)
		mustSet(t, s, "c1", []byte("1"), 0)
		mustSet(t, s, "c2", []byte("2"), ttl)
		if err := s.Clear(ctx); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		for _, k := range []string{"c1", "c2"} {
			if _, ok, _ := s.Get(ctx, k); ok {
				t.Fatalf("%s survived Clear", k)
			}
		}
	})

	t.Run("TTLElapsedReadsAbsent", func(t *testing.T) {
		s := fresh(t)
		mustSet(t, s, "short", []byte("x"), ttl)
		mustSet(t, s, "forever", []byte("y"), 0)
		if _, ok, _ := s.Get(ctx, "short"); !ok {
			t.Fatalf("entry missing before TTL elapsed")
		}
		h.Advance(t, 2*ttl)
		if _, ok, _ := s.Get(ctx, "short"); ok {
			t.Fatalf("entry still present after TTL elapsed")
		}
		if ok, _ := s.Exists(ctx, "short"); ok {
			t.Fatalf("Exists reports an expired entry")
		}
		if got, ok, _ := s.Get(ctx, "forever"); !ok || string(got) != "y" {
			t.Fatalf("ttl=0 entry expired: got=%q ok=%v", got, ok)
		}
	})

	t.Run("Batch", func(t *testing.T) {
		s := fresh(t)
		failed := store.SetMany(ctx, s, []store.Entry{
			{Key: "b1", Value: []byte("1")},
			{Key: "b2", Value: []byte("2"), TTL: ttl},
			{Key: "b3", Value: []byte("3")},
		})
		if len(failed) != 0 {
			t.Fatalf("SetMany failures: %v", failed)
		}
		got, err := store.GetMany(ctx, s, []string{"b1", "b2", "b3", "b4"})
		if err != nil {
			t.Fatalf("GetMany: %v", err)
		}
		if len(got) != 3 || string(got["b1"]) != "1" || string(got["b2"]) != "2" || string(got["b3"]) != "3" {
			t.Fatalf("GetMany: %v", got)
		}
		if failed := store.DeleteMany(ctx, s, []string{"b1", "b3", "b4"}); len(failed) != 0 {
			t.Fatalf("DeleteMany failures: %v", failed)
		}
		got, _ = store.GetMany(ctx, s, []string{"b1", "b2", "b3"})
		if len(got) != 1 || string(got["b2"]) != "2" {
			t.Fatalf("after DeleteMany: %v", got)
		}
	})
}
