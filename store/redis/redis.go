// Package redis adapts a go-redis client to store.Store.
package redis

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/cachepool/store"
)

var ErrNilClient = errors.New("redis store: nil client")

const scanBatch = 512

type Redis struct {
	rdb         goredis.UniversalClient
	prefix      string
	match       string // SCAN pattern for the prefix, glob metacharacters escaped
	closeClient bool
}

var (
	_ store.Store   = (*Redis)(nil)
	_ store.Batcher = (*Redis)(nil)
)

type Config struct {
	Client goredis.UniversalClient
	// Prefix namespaces every key. With a prefix, Clear deletes only the
	// prefixed keyspace; without one, Clear flushes the selected database.
	Prefix      string
	CloseClient bool // set true only if this store exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{
		rdb:         cfg.Client,
		prefix:      cfg.Prefix,
		match:       globEscape(cfg.Prefix) + "*",
		closeClient: cfg.CloseClient,
	}, nil
}

func globEscape(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *Redis) k(key string) string { return r.prefix + key }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.rdb.Get(ctx, r.k(key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 0 // no expiry
	}
	if err := r.rdb.Set(ctx, r.k(key), value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.k(key)).Err()
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.k(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if r.prefix == "" {
		return r.rdb.FlushDB(ctx).Err()
	}
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, r.match, scanBatch).Result()
		if err != nil {
			return err
		}
		keys = slices.DeleteFunc(keys, func(k string) bool { return !strings.HasPrefix(k, r.prefix) })
		if len(keys) > 0 {
			if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// GetMany issues a single MGET.
func (r *Redis) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.k(k)
	}
	vals, err := r.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		switch s := v.(type) {
		case string:
			out[keys[i]] = []byte(s)
		case []byte:
			out[keys[i]] = s
		}
	}
	return out, nil
}

// SetMany pipelines one SET per entry; each entry's outcome is reported
// separately.
func (r *Redis) SetMany(ctx context.Context, entries []store.Entry) map[string]error {
	if len(entries) == 0 {
		return nil
	}
	cmds := make([]*goredis.StatusCmd, len(entries))
	_, _ = r.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, e := range entries {
			ttl := e.TTL
			if ttl < 0 {
				ttl = 0
			}
			cmds[i] = p.Set(ctx, r.k(e.Key), e.Value, ttl)
		}
		return nil
	})
	var failed map[string]error
	for i, c := range cmds {
		if err := c.Err(); err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[entries[i].Key] = err
		}
	}
	return failed
}

func (r *Redis) DeleteMany(ctx context.Context, keys []string) map[string]error {
	if len(keys) == 0 {
		return nil
	}
	cmds := make([]*goredis.IntCmd, len(keys))
	_, _ = r.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.Del(ctx, r.k(k))
		}
		return nil
	})
	var failed map[string]error
	for i, c := range cmds {
		if err := c.Err(); err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[keys[i]] = err
		}
	}
	return failed
}

// Close releases the underlying redis client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (r *Redis) Close(context.Context) error {
	if r.closeClient {
		if err := r.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
