package protopage

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/unkn0wn-root/pagecache"
)

func newCodec() Codec[*wrapperspb.StringValue] {
	return New(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
}

func TestPageRoundTrip(t *testing.T) {
	c := newCodec()
	in := pagecache.Page[*wrapperspb.StringValue]{
		Items: []*wrapperspb.StringValue{wrapperspb.String("a"), wrapperspb.String(""), wrapperspb.String("ccc")},
		Next:  "page1",
	}
	b, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Next != "page1" || len(out.Items) != 3 {
		t.Fatalf("unexpected page: %v", out)
	}
	for i := range in.Items {
		if !proto.Equal(in.Items[i], out.Items[i]) {
			t.Fatalf("item %d: got %v want %v", i, out.Items[i], in.Items[i])
		}
	}
}

func TestEmptyPage(t *testing.T) {
	c := newCodec()
	b, err := c.Encode(pagecache.Page[*wrapperspb.StringValue]{})
	if err != nil || len(b) != 0 {
		t.Fatalf("empty page should encode to nothing: %x %v", b, err)
	}
	out, err := c.Decode(b)
	if err != nil || out.Items == nil || len(out.Items) != 0 || out.Next != "" {
		t.Fatalf("unexpected empty page: %#v %v", out, err)
	}
}

func TestSkipsUnknownFields(t *testing.T) {
	c := newCodec()
	b, _ := c.Encode(pagecache.Page[*wrapperspb.StringValue]{Items: []*wrapperspb.StringValue{wrapperspb.String("x")}})
	b = protowire.AppendTag(b, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, 42)

	out, err := c.Decode(b)
	if err != nil || len(out.Items) != 1 || out.Items[0].GetValue() != "x" {
		t.Fatalf("unexpected decode: %v %v", out, err)
	}
}

func TestTruncatedInput(t *testing.T) {
	c := newCodec()
	b, _ := c.Encode(pagecache.Page[*wrapperspb.StringValue]{
		Items: []*wrapperspb.StringValue{wrapperspb.String("hello")},
		Next:  "cursor",
	})
	if _, err := c.Decode(b[:len(b)-2]); err == nil {
		t.Fatalf("expected error on truncated input")
	}
}
