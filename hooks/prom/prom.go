// Package prom exports cache events as Prometheus counters.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/cachepool"
)

const subsystem = "cachepool"

// Hooks counts events. It never blocks, so it can be used without
// hooks/async in front.
type Hooks struct {
	expired        prometheus.Counter
	decodeFailed   prometheus.Counter
	storeFailed    *prometheus.CounterVec
	commits        prometheus.Counter
	commitItems    prometheus.Counter
	commitFailures prometheus.Counter
}

var _ cachepool.Hooks = (*Hooks)(nil)

// New creates the counters and registers them with reg. A nil reg means
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}
	h := &Hooks{
		expired:      counter("expired_on_read_total", "Entries found expired on read and deleted."),
		decodeFailed: counter("decode_failed_total", "Entries that could not be decoded and were deleted."),
		storeFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "store_failures_total",
			Help:      "Store writes, deletes and clears that failed or were rejected.",
		}, []string{"op"}),
		commits:        counter("commits_total", "Deferred queue flushes."),
		commitItems:    counter("commit_items_total", "Items written by deferred queue flushes."),
		commitFailures: counter("commit_item_failures_total", "Items a deferred queue flush failed to write."),
	}
	for _, c := range []prometheus.Collector{h.expired, h.decodeFailed, h.storeFailed, h.commits, h.commitItems, h.commitFailures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) ExpiredOnRead(string)       { h.expired.Inc() }
func (h *Hooks) DecodeFailed(string, error) { h.decodeFailed.Inc() }

func (h *Hooks) StoreFailed(op, _ string, _ error) {
	h.storeFailed.WithLabelValues(op).Inc()
}

func (h *Hooks) CommitFinished(total, failed int) {
	h.commits.Inc()
	h.commitItems.Add(float64(total - failed))
	h.commitFailures.Add(float64(failed))
}
