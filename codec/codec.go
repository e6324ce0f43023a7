// Package codec holds the marshalling boundary between caller values and the
// bytes a store persists. Codecs are stateless and must round-trip:
// Decode(Encode(v)) reproduces v for every value the codec supports.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Default returns the codec pools use when none is configured.
func Default[V any]() Codec[V] { return Msgpack[V]{} }

// Encode runs c.Encode and wraps any failure in an *EncodingError.
func Encode[V any](c Codec[V], v V) ([]byte, error) {
	b, err := c.Encode(v)
	if err != nil {
		return nil, &EncodingError{Type: typeName(v), Err: err}
	}
	return b, nil
}

// Decode runs c.Decode and wraps any failure in a *DecodingError.
func Decode[V any](c Codec[V], b []byte) (V, error) {
	v, err := c.Decode(b)
	if err != nil {
		var zero V
		return zero, &DecodingError{Len: len(b), Err: err}
	}
	return v, nil
}
