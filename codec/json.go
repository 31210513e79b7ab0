package codec

import "encoding/json"

// JSON is the default codec. Its output is embedded verbatim inside
// logical-expiry entries, which keeps stored values human-readable.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
