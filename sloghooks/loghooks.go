// Package sloghooks reports cache events through log/slog with sampling and
// key redaction.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/cachepool"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	ExpiredEvery      uint64
	DecodeFailedEvery uint64
	// LogCommits logs every commit, not only ones with failures.
	LogCommits bool
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	expiredCtr atomic.Uint64
	decodeCtr  atomic.Uint64
}

var _ cachepool.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) ExpiredOnRead(storageKey string) {
	if h.l == nil || !sample(h.opts.ExpiredEvery, &h.expiredCtr) {
		return
	}
	h.l.Debug("cachepool.expired_on_read",
		"key", h.redact(storageKey))
}

func (h *Hooks) DecodeFailed(storageKey string, err error) {
	if h.l == nil || !sample(h.opts.DecodeFailedEvery, &h.decodeCtr) {
		return
	}
	h.l.Warn("cachepool.decode_failed",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) StoreFailed(op, storageKey string, err error) {
	if h.l == nil {
		return
	}
	args := []any{"op", op, "err", err}
	if storageKey != "" {
		args = append(args, "key", h.redact(storageKey))
	}
	h.l.Warn("cachepool.store_failed", args...)
}

func (h *Hooks) CommitFinished(total, failed int) {
	if h.l == nil {
		return
	}
	switch {
	case failed > 0:
		h.l.Warn("cachepool.commit_partial",
			"total", total,
			"failed", failed)
	case h.opts.LogCommits:
		h.l.Debug("cachepool.commit",
			"total", total)
	}
}
