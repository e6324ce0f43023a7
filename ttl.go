package cachepool

import (
	"math"
	"time"
)

const maxTTLSeconds = math.MaxInt64 / int64(time.Second)

// maxExpiration is the latest instant an entry envelope can carry.
var maxExpiration = time.Unix(0, math.MaxInt64)

// ExpirationFor turns an untyped TTL into an absolute expiration. The zero
// time means "never expires".
//
// Accepted shapes:
//   - nil: never
//   - time.Time, *time.Time: absolute; zero or nil pointer means never
//   - time.Duration, *time.Duration: relative to now
//   - any integer kind: seconds relative to now
//
// A relative TTL of zero or less yields an instant at or before now, so the
// entry is already expired and reads back as absent.
func ExpirationFor(ttl any, now time.Time) (time.Time, error) {
	switch t := ttl.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, nil
		}
		return *t, nil
	case time.Duration:
		return now.Add(t), nil
	case *time.Duration:
		if t == nil {
			return time.Time{}, nil
		}
		return now.Add(*t), nil
	case int:
		return secondsFrom(now, int64(t), ttl)
	case int8:
		return secondsFrom(now, int64(t), ttl)
	case int16:
		return secondsFrom(now, int64(t), ttl)
	case int32:
		return secondsFrom(now, int64(t), ttl)
	case int64:
		return secondsFrom(now, t, ttl)
	case uint:
		return unsignedSecondsFrom(now, uint64(t), ttl)
	case uint8:
		return secondsFrom(now, int64(t), ttl)
	case uint16:
		return secondsFrom(now, int64(t), ttl)
	case uint32:
		return secondsFrom(now, int64(t), ttl)
	case uint64:
		return unsignedSecondsFrom(now, t, ttl)
	}
	return time.Time{}, ttlError(ttl, "must be nil, a time.Time, a time.Duration or integer seconds")
}

func secondsFrom(now time.Time, s int64, raw any) (time.Time, error) {
	if s > maxTTLSeconds || s < -maxTTLSeconds {
		return time.Time{}, ttlError(raw, "out of range")
	}
	exp := now.Add(time.Duration(s) * time.Second)
	if exp.After(maxExpiration) {
		return time.Time{}, ttlError(raw, "expires after "+maxExpiration.UTC().Format(time.RFC3339))
	}
	return exp, nil
}

func unsignedSecondsFrom(now time.Time, s uint64, raw any) (time.Time, error) {
	if s > uint64(maxTTLSeconds) {
		return time.Time{}, ttlError(raw, "out of range")
	}
	return secondsFrom(now, int64(s), raw)
}

func ttlError(v any, reason string) error {
	return &ValidationError{Field: "ttl", Value: v, Reason: reason, Err: ErrInvalidTTL}
}
