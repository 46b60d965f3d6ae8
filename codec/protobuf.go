package codec

import "google.golang.org/protobuf/proto"

// Protobuf encodes one proto message. codec/protopage uses it for items.
//
// Output is deterministic so replicas agree on bytes, and fields unknown to
// this binary are dropped on decode.
type Protobuf[T proto.Message] struct {
	ctor func() T
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{ctor: ctor}
}

var (
	protoMarshal   = proto.MarshalOptions{Deterministic: true}
	protoUnmarshal = proto.UnmarshalOptions{DiscardUnknown: true}
)

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return protoMarshal.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.ctor()
	return m, protoUnmarshal.Unmarshal(b, m)
}
