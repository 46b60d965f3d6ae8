package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version   byte = 1
	kindEntry byte = 1
	kindPage  byte = 2

	entryHeader = 4 + 1 + 1 + 8 + 4
	pageHeader  = 4 + 1 + 1 + 4 + 4
)

var (
	ErrCorrupt = errors.New("pagecache: corrupt entry")
	magic4     = [...]byte{'P', 'G', 'W', 'N'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry: magic(4) | ver(1) | kind(1=entry) | gen(u64 be) | vlen(u32 be) | payload(vlen)
//
// gen is the store generation the payload was written under; readers compare
// it with the current generation and drop entries that lag behind.
func EncodeEntry(gen uint64, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(entryHeader + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], gen)
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

func DecodeEntry(b []byte) (gen uint64, payload []byte, err error) {
	if len(b) < entryHeader || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return 0, nil, ErrCorrupt
	}

	off := 6
	gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// strict framing: no trailing bytes
	if vlen < 0 || vlen != len(b)-off {
		return 0, nil, ErrCorrupt
	}
	return gen, b[off : off+vlen], nil
}

// Page:
//
//	magic(4) | ver(1) | kind(2=page) | n(u32 be) | nextLen(u32 be) | next(nextLen)
//	itemLen(u32 be) | item(itemLen) * n
//
// Used by codecs whose items are already byte-encoded (e.g. protobuf messages).
func EncodePage(items [][]byte, next string) []byte {
	total := pageHeader + len(next)
	for _, it := range items {
		total += 4 + len(it)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindPage)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(items)))
	buf.Write(u4[:])
	binary.BigEndian.PutUint32(u4[:], uint32(len(next)))
	buf.Write(u4[:])
	buf.WriteString(next)

	for _, it := range items {
		binary.BigEndian.PutUint32(u4[:], uint32(len(it)))
		buf.Write(u4[:])
		buf.Write(it)
	}
	return buf.Bytes()
}

func DecodePage(b []byte) (items [][]byte, next string, err error) {
	if len(b) < pageHeader || !hasMagic(b) || b[4] != version || b[5] != kindPage {
		return nil, "", ErrCorrupt
	}

	off := 6
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	nlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if n < 0 || nlen < 0 || nlen > len(b)-off {
		return nil, "", ErrCorrupt
	}
	next = string(b[off : off+nlen])
	off += nlen

	// each item needs at least its 4-byte length; don't trust n for capacity
	if n > (len(b)-off)/4 {
		return nil, "", ErrCorrupt
	}
	items = make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if off+4 > len(b) {
			return nil, "", ErrCorrupt
		}
		ilen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if ilen < 0 || ilen > len(b)-off {
			return nil, "", ErrCorrupt
		}
		items = append(items, b[off:off+ilen])
		off += ilen
	}
	if off != len(b) {
		return nil, "", ErrCorrupt
	}
	return items, next, nil
}
