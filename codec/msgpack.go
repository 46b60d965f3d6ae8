package codec

import (
	"bytes"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack is the pager's default Codec. The zero value is ready to use.
//
// Integers are written in their smallest form and struct fields are read
// from `msgpack:"..."` tags; json tags are not consulted.
type Msgpack[V any] struct{}

var _ Codec[struct{}] = Msgpack[struct{}]{}

var msgpackBufs = sync.Pool{New: func() any { return new(bytes.Buffer) }}

func (Msgpack[V]) Encode(v V) ([]byte, error) {
	buf := msgpackBufs.Get().(*bytes.Buffer)
	buf.Reset()
	defer msgpackBufs.Put(buf)

	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.Reset(bytes.NewReader(b))
	if err := dec.Decode(&v); err != nil {
		return v, err
	}
	return v, nil
}
