// Package protopage stores pages of protobuf items without a wrapper .proto.
//
// The slot is a protobuf message on the wire, readable by any protobuf
// decoder as
//
//	message Page {
//	  repeated bytes items = 1; // each one a serialized item message
//	  string next = 2;
//	}
package protopage

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"

	"github.com/unkn0wn-root/pagecache"
	"github.com/unkn0wn-root/pagecache/codec"
)

const (
	fieldItems protowire.Number = 1
	fieldNext  protowire.Number = 2
)

// Codec is a codec.Codec[pagecache.Page[M]].
type Codec[M proto.Message] struct {
	item codec.Protobuf[M]
}

var _ codec.Codec[pagecache.Page[proto.Message]] = Codec[proto.Message]{}

// New builds a page codec; ctor returns an empty item message.
func New[M proto.Message](ctor func() M) Codec[M] {
	return Codec[M]{item: codec.NewProtobuf(ctor)}
}

func (c Codec[M]) Encode(p pagecache.Page[M]) ([]byte, error) {
	var b []byte
	for i, it := range p.Items {
		raw, err := c.item.Encode(it)
		if err != nil {
			return nil, fmt.Errorf("protopage: item %d: %w", i, err)
		}
		b = protowire.AppendTag(b, fieldItems, protowire.BytesType)
		b = protowire.AppendBytes(b, raw)
	}
	if p.Next != "" {
		b = protowire.AppendTag(b, fieldNext, protowire.BytesType)
		b = protowire.AppendString(b, p.Next)
	}
	return b, nil
}

func (c Codec[M]) Decode(b []byte) (pagecache.Page[M], error) {
	p := pagecache.Page[M]{Items: []M{}}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return pagecache.Page[M]{}, fmt.Errorf("protopage: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldItems && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return pagecache.Page[M]{}, fmt.Errorf("protopage: item %d: %w", len(p.Items), protowire.ParseError(n))
			}
			it, err := c.item.Decode(raw)
			if err != nil {
				return pagecache.Page[M]{}, fmt.Errorf("protopage: item %d: %w", len(p.Items), err)
			}
			p.Items = append(p.Items, it)
			b = b[n:]
		case num == fieldNext && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return pagecache.Page[M]{}, fmt.Errorf("protopage: next: %w", protowire.ParseError(n))
			}
			p.Next = s
			b = b[n:]
		default:
			// unknown field from a newer writer
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return pagecache.Page[M]{}, fmt.Errorf("protopage: field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return p, nil
}
