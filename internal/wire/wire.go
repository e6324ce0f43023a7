package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

const (
	version   byte = 1
	kindEntry byte = 1

	headerLen = 4 + 1 + 1 + 8 + 4
)

var (
	ErrCorrupt = errors.New("cachepool: corrupt entry")
	magic4     = [...]byte{'C', 'P', 'O', 'L'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry: magic(4) | ver(1) | kind(1=entry) | expiresAt(i64 be, unix nanos, 0=never) | vlen(u32 be) | payload(vlen)
func Encode(expiresAt int64, payload []byte) []byte {
	if uint64(len(payload)) > math.MaxUint32 {
		panic("cachepool: payload too large for entry envelope")
	}
	var buf bytes.Buffer
	buf.Grow(headerLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], uint64(expiresAt))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// Decode validates the envelope and returns its expiration and payload.
// The payload aliases b.
func Decode(b []byte) (expiresAt int64, payload []byte, err error) {
	expiresAt, vlen, err := header(b)
	if err != nil {
		return 0, nil, err
	}
	return expiresAt, b[headerLen : headerLen+vlen], nil
}

// Header validates the envelope without touching the payload and returns
// the expiration only.
func Header(b []byte) (expiresAt int64, err error) {
	expiresAt, _, err = header(b)
	return expiresAt, err
}

func header(b []byte) (int64, int, error) {
	if len(b) < headerLen || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return 0, 0, ErrCorrupt
	}
	off := 6

	expiresAt := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	if expiresAt < 0 {
		return 0, 0, ErrCorrupt
	}

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// exact length: trailing bytes mean a foreign or truncated write
	if vlen != len(b)-off {
		return 0, 0, ErrCorrupt
	}
	return expiresAt, vlen, nil
}
