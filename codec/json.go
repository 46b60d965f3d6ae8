package codec

import "encoding/json"

// JSON is a Codec backed by encoding/json. Handy when slots need to be
// readable with redis-cli; larger and slower than Msgpack.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
