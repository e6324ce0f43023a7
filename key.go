package cachepool

import (
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/unkn0wn-root/cachepool/codec"
	"github.com/unkn0wn-root/cachepool/internal/util"
)

// MaxKeyLen is the longest accepted key, counted in characters (runes).
const MaxKeyLen = 64

// ReservedKeyChars may not appear anywhere in a key.
const ReservedKeyChars = `{}()/\@:`

// deterministic CBOR gives DeriveKey byte-stable input for the digest
var deriveCodec = codec.MustCBOR[any](true)

// ValidateKey reports whether key is usable as a cache key: non-empty valid
// UTF-8 of at most MaxKeyLen characters, none of them reserved.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return keyError(key, "empty")
	case !utf8.ValidString(key):
		return keyError(key, "not valid UTF-8")
	case utf8.RuneCountInString(key) > MaxKeyLen:
		return keyError(key, fmt.Sprintf("longer than %d characters", MaxKeyLen))
	case strings.ContainsAny(key, ReservedKeyChars):
		return keyError(key, "contains one of "+ReservedKeyChars)
	}
	return nil
}

// NormalizeKey coerces a string or fmt.Stringer into a validated key.
func NormalizeKey(key any) (string, error) {
	var s string
	switch k := key.(type) {
	case string:
		s = k
	case fmt.Stringer:
		s = k.String()
	default:
		return "", &ValidationError{Field: "key", Value: key, Reason: "must be a string or fmt.Stringer", Err: ErrInvalidKey}
	}
	if err := ValidateKey(s); err != nil {
		return "", err
	}
	return s, nil
}

// DeriveKey maps an arbitrary value (a tag name, a composite identifier) to a
// valid key: the hex sha256 of its deterministic CBOR encoding. Equal values
// always derive the same key.
func DeriveKey(v any) (string, error) {
	b, err := deriveCodec.Encode(v)
	if err != nil {
		return "", &ValidationError{Field: "key", Value: v, Reason: "cannot be serialized: " + err.Error(), Err: ErrInvalidArgument}
	}
	return util.Digest(b), nil
}

func keyError(key, reason string) error {
	return &ValidationError{Field: "key", Value: key, Reason: reason, Err: ErrInvalidKey}
}

// validateKeys checks every key up front so a batch is never partially applied
// because of one malformed key.
func validateKeys(op string, keys []string) error {
	for _, k := range keys {
		if err := ValidateKey(k); err != nil {
			return withOp(err, op)
		}
	}
	return nil
}

// collectKeys drains a key iterator and validates the result.
func collectKeys(op string, seq iter.Seq[string]) ([]string, error) {
	if seq == nil {
		return nil, &ValidationError{Op: op, Field: "keys", Value: nil, Reason: "nil iterator", Err: ErrInvalidArgument}
	}
	var keys []string
	for k := range seq {
		keys = append(keys, k)
	}
	if err := validateKeys(op, keys); err != nil {
		return nil, err
	}
	return keys, nil
}
