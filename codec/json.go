package codec

import "encoding/json"

// JSON is a Codec backed by encoding/json. Numbers decoded into interface
// values become float64, so prefer concrete V types with this codec.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
