package codec

import (
	"errors"
	"fmt"
)

// ErrTooLarge is returned by LimitCodec when a payload exceeds MaxDecode.
var ErrTooLarge = errors.New("codec: payload too large")

// EncodingError reports a value that could not be marshalled, e.g. one
// holding a func or chan.
type EncodingError struct {
	Type string
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("codec: encode %s: %v", e.Type, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// DecodingError reports corrupt or foreign-format input.
type DecodingError struct {
	Len int
	Err error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("codec: decode %d bytes: %v", e.Len, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

func typeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", v)
}
