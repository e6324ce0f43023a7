// Package bigcache adapts allegro/bigcache to store.Store.
//
// BigCache only knows a global LifeWindow, so each value is stored behind an
// 8-byte expiry header which Get strips again. The header never leaks: callers
// see exactly the bytes they wrote.
package bigcache

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/cachepool/store"
)

const headerLen = 8

// DefaultLifeWindow caps the lifetime of entries written without a TTL.
const DefaultLifeWindow = 24 * time.Hour

type Store struct {
	c   *bc.BigCache
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

type Config struct {
	// LifeWindow is the hard upper bound on any entry's lifetime, including
	// entries written with no TTL. Defaults to DefaultLifeWindow.
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	Shards             int // power of two
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
	// Now overrides the clock used for per-entry TTLs.
	Now func() time.Time
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = DefaultLifeWindow
	}
	conf := bc.DefaultConfig(life)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{c: c, now: now}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := s.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(b) < headerLen {
		// self-heal: not written by us
		_ = s.c.Delete(key)
		return nil, false, nil
	}
	if s.expired(b) {
		_ = s.c.Delete(key)
		return nil, false, nil
	}
	return b[headerLen:], true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var exp int64
	if ttl > 0 {
		exp = s.now().Add(ttl).UnixNano()
	}
	buf := make([]byte, headerLen+len(value))
	binary.BigEndian.PutUint64(buf, uint64(exp))
	copy(buf[headerLen:], value)
	if err := s.c.Set(key, buf); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	if err := s.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *Store) Clear(_ context.Context) error {
	return s.c.Reset()
}

func (s *Store) Close(_ context.Context) error {
	return s.c.Close()
}

// Len reports the number of raw entries bigcache holds.
func (s *Store) Len() int { return s.c.Len() }

func (s *Store) expired(b []byte) bool {
	exp := int64(binary.BigEndian.Uint64(b[:headerLen]))
	return exp != 0 && s.now().UnixNano() >= exp
}
