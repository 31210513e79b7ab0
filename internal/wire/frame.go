package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("cacheaside: corrupt entry")
	magic4     = [...]byte{'C', 'A', 'T', 'L'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Expiring frame, used by stores without per-key TTL:
//
//	magic(4) | ver(1) | expireAt(i64 be, unix nanos; 0 = never) | vlen(u32 be) | payload(vlen)
func EncodeExpiring(payload []byte, expireAt time.Time) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 8 + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte

	var exp int64
	if !expireAt.IsZero() {
		exp = expireAt.UnixNano()
	}
	binary.BigEndian.PutUint64(u8[:], uint64(exp))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// DecodeExpiring returns the payload and its absolute expiry (zero => never).
// The returned payload is never nil, so an empty value stays distinguishable
// from a miss.
func DecodeExpiring(b []byte) (payload []byte, expireAt time.Time, err error) {
	const hdr = 4 + 1 + 8 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return nil, time.Time{}, ErrCorrupt
	}
	off := 5

	exp := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // exact length, no trailing junk
		return nil, time.Time{}, ErrCorrupt
	}

	if exp != 0 {
		expireAt = time.Unix(0, exp)
	}
	return b[off : off+vlen : off+vlen], expireAt, nil
}
