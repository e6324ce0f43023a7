package prom

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/unkn0wn-root/cachepool"
	"github.com/unkn0wn-root/cachepool/store/memory"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := New(reg, "app")
	if err != nil {
		t.Fatal(err)
	}

	h.ExpiredOnRead("a")
	h.ExpiredOnRead("b")
	h.DecodeFailed("c", errors.New("x"))
	h.StoreFailed("set", "d", errors.New("y"))
	h.StoreFailed("set", "e", errors.New("y"))
	h.StoreFailed("clear", "", errors.New("z"))
	h.CommitFinished(5, 2)

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"expired", h.expired, 2},
		{"decode", h.decodeFailed, 1},
		{"set failures", h.storeFailed.WithLabelValues("set"), 2},
		{"clear failures", h.storeFailed.WithLabelValues("clear"), 1},
		{"commits", h.commits, 1},
		{"commit items", h.commitItems, 3},
		{"commit failures", h.commitFailures, 2},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(c.c); got != c.want {
			t.Fatalf("%s: got %v want %v", c.name, got, c.want)
		}
	}
	if n, err := testutil.GatherAndCount(reg, "app_cachepool_expired_on_read_total"); err != nil || n != 1 {
		t.Fatalf("metric not registered under the expected name: n=%d err=%v", n, err)
	}
}

func TestDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg, "dup"); err != nil {
		t.Fatal(err)
	}
	if _, err := New(reg, "dup"); err == nil {
		t.Fatalf("expected AlreadyRegisteredError")
	}
}

func TestWiredIntoPool(t *testing.T) {
	ctx := context.Background()
	h, err := New(prometheus.NewRegistry(), "wired")
	if err != nil {
		t.Fatal(err)
	}
	p, err := cachepool.New(cachepool.Options[string]{Store: memory.New(memory.Config{}), Hooks: h})
	if err != nil {
		t.Fatal(err)
	}
	it, _ := p.NewItem("k")
	_, _ = p.SaveDeferred(ctx, it.Set("v"))
	p.Commit(ctx)
	if got := testutil.ToFloat64(h.commitItems); got != 1 {
		t.Fatalf("commit items: %v", got)
	}
}
