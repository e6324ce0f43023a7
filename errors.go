package cachepool

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidKey      = errors.New("cachepool: invalid key")
	ErrInvalidTTL      = errors.New("cachepool: invalid ttl")
	ErrInvalidArgument = errors.New("cachepool: invalid argument")
)

// ValidationError reports malformed caller input. It is always returned
// before any storage access, so nothing was partially applied.
type ValidationError struct {
	Op     string // operation that rejected the input, e.g. "GetItem"
	Field  string // "key", "ttl", "keys", ...
	Value  any
	Reason string
	Err    error // one of ErrInvalidKey, ErrInvalidTTL, ErrInvalidArgument
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("cachepool: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "invalid %s %#v", e.Field, e.Value)
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// withOp stamps the operation name on a validation error produced by a helper.
func withOp(err error, op string) error {
	var ve *ValidationError
	if errors.As(err, &ve) && ve.Op == "" {
		cp := *ve
		cp.Op = op
		return &cp
	}
	return err
}

// BackendError wraps a failure surfaced by the backing store on a read path.
// Write paths report such failures as a false result instead.
type BackendError struct {
	Op  string
	Key string
	Err error
}

func (e *BackendError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cachepool: %s: backend unavailable: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cachepool: %s %q: backend unavailable: %v", e.Op, e.Key, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// CommitError is returned by Close and WithDeferred when the deferred queue
// could not be fully persisted. Keys lists the entries that failed.
type CommitError struct {
	Keys []string
	Errs []error
}

func (e *CommitError) Error() string {
	switch {
	case len(e.Keys) == 0:
		return "cachepool: commit failed"
	case len(e.Keys) == 1:
		return fmt.Sprintf("cachepool: commit failed for %q", e.Keys[0])
	default:
		return fmt.Sprintf("cachepool: commit failed for %d keys (first %q)", len(e.Keys), e.Keys[0])
	}
}

func (e *CommitError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errs))
	for _, err := range e.Errs {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
