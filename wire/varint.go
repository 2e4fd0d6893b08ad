// Package wire implements the hang frame envelope: a QUIC-style
// self-describing varint presentation timestamp followed by an opaque
// payload.
package wire

import (
	"encoding/binary"

	"github.com/okdaichi/hang/hangerr"
	"github.com/okdaichi/hang/media"
)

// Varint length classes, selected by the top two bits of the first
// byte: 00 -> 1 byte / 6 payload bits, 01 -> 2 bytes / 14 bits,
// 10 -> 4 bytes / 30 bits, 11 -> 8 bytes / 62 bits. Only the low 53
// bits of the 62-bit class are ever used by hang (timestamps are
// capped at 2^53-1), but the wire format itself is the general QUIC
// varint.
const (
	len1Max uint64 = 1<<6 - 1
	len2Max uint64 = 1<<14 - 1
	len4Max uint64 = 1<<30 - 1
	len8Max uint64 = 1<<62 - 1
)

// AppendVarint appends the QUIC-style varint encoding of v to buf and
// returns the extended slice. v must be <= 2^62-1; hang callers never
// exceed 2^53-1 (enforced by EncodeFrame) but this primitive encodes
// the full QUIC range for reuse outside the frame envelope.
func AppendVarint(buf []byte, v uint64) []byte {
	switch {
	case v <= len1Max:
		return append(buf, byte(v))
	case v <= len2Max:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(v))
		b[0] |= 0x40
		return append(buf, b[:]...)
	case v <= len4Max:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(v))
		b[0] |= 0x80
		return append(buf, b[:]...)
	case v <= len8Max:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		b[0] |= 0xC0
		return append(buf, b[:]...)
	default:
		// Unreachable from EncodeFrame; defensive for direct callers.
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v&len8Max)
		b[0] |= 0xC0
		return append(buf, b[:]...)
	}
}

// VarintLen returns the number of bytes AppendVarint would emit for v.
func VarintLen(v uint64) int {
	switch {
	case v <= len1Max:
		return 1
	case v <= len2Max:
		return 2
	case v <= len4Max:
		return 4
	default:
		return 8
	}
}

// ReadVarint decodes a QUIC-style varint from the front of b, treating
// all length classes as unsigned: earlier
// ports mixed signed and unsigned reads for the 2-byte class — every
// varint field here is unsigned). It returns the value and the number
// of bytes consumed.
func ReadVarint(b []byte) (v uint64, n int, ok bool) {
	if len(b) == 0 {
		return 0, 0, false
	}
	switch b[0] >> 6 {
	case 0:
		return uint64(b[0] & 0x3F), 1, true
	case 1:
		if len(b) < 2 {
			return 0, 0, false
		}
		var tmp [2]byte
		copy(tmp[:], b[:2])
		tmp[0] &= 0x3F
		return uint64(binary.BigEndian.Uint16(tmp[:])), 2, true
	case 2:
		if len(b) < 4 {
			return 0, 0, false
		}
		var tmp [4]byte
		copy(tmp[:], b[:4])
		tmp[0] &= 0x3F
		return uint64(binary.BigEndian.Uint32(tmp[:])), 4, true
	default:
		if len(b) < 8 {
			return 0, 0, false
		}
		var tmp [8]byte
		copy(tmp[:], b[:8])
		tmp[0] &= 0x3F
		return binary.BigEndian.Uint64(tmp[:]), 8, true
	}
}

// EncodeFrame writes the frame envelope — varint(ts) ‖ payload — to a
// freshly allocated buffer and returns it. It rejects timestamps above
// 2^53-1 with hangerr.ErrOverflow.
func EncodeFrame(ts media.Timestamp, payload []byte) ([]byte, error) {
	if ts > media.MaxTimestamp {
		return nil, hangerr.ErrOverflow
	}
	out := make([]byte, 0, VarintLen(uint64(ts))+len(payload))
	out = AppendVarint(out, uint64(ts))
	out = append(out, payload...)
	return out, nil
}

// DecodeFrame splits a frame envelope into its timestamp and payload.
// The returned payload aliases b; callers that retain it past the
// lifetime of b's backing array must copy.
func DecodeFrame(b []byte) (ts media.Timestamp, payload []byte, err error) {
	v, n, ok := ReadVarint(b)
	if !ok {
		return 0, nil, hangerr.ErrMalformedEnvelope
	}
	return media.Timestamp(v), b[n:], nil
}
