// Package codec serializes cached pages.
//
// A pager stores each window slot as Codec[Page[T]] output. Msgpack is the
// default; CBOR and JSON are interchangeable as long as every replica sharing
// a store uses the same one. Entries a codec cannot decode are dropped and
// rebuilt, so switching codecs costs one rebuild per prefix.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
