package wire

import (
	"testing"

	"github.com/okdaichi/hang/hangerr"
	"github.com/okdaichi/hang/media"
	"github.com/stretchr/testify/require"
)

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 63, 64, 16383, 16384,
		1 << 29, 1<<30 - 1, 1 << 30,
		1 << 52, uint64(media.MaxTimestamp.Micros()) - 0,
		uint64(media.MaxTimestamp),
	}

	for _, v := range values {
		buf := AppendVarint(nil, v)
		if len(buf) != VarintLen(v) {
			t.Errorf("AppendVarint(%d) produced %d bytes, VarintLen says %d", v, len(buf), VarintLen(v))
		}

		got, n, ok := ReadVarint(buf)
		if !ok {
			t.Fatalf("ReadVarint failed for v=%d buf=%x", v, buf)
		}
		if n != len(buf) {
			t.Errorf("ReadVarint consumed %d bytes, want %d", n, len(buf))
		}
		if got != v {
			t.Errorf("round trip v=%d got=%d", v, got)
		}
	}
}

func TestVarintMinimalLength(t *testing.T) {
	cases := []struct {
		v    uint64
		want int
	}{
		{0, 1},
		{63, 1},
		{64, 2},
		{16383, 2},
		{16384, 4},
		{1<<30 - 1, 4},
		{1 << 30, 8},
	}
	for _, c := range cases {
		got := len(AppendVarint(nil, c.v))
		if got != c.want {
			t.Errorf("v=%d: got length %d, want %d", c.v, got, c.want)
		}
	}
}

func TestReadVarintTruncated(t *testing.T) {
	full := AppendVarint(nil, 1<<20)
	for i := 0; i < len(full); i++ {
		if _, _, ok := ReadVarint(full[:i]); ok {
			t.Errorf("ReadVarint accepted truncated input of length %d", i)
		}
	}
}

func TestEncodeFrameOverflow(t *testing.T) {
	_, err := EncodeFrame(media.MaxTimestamp+1, []byte("x"))
	require.ErrorIs(t, err, hangerr.ErrOverflow)
}

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	payload := []byte("opaque media payload")
	ts := media.FromMillis(123456)

	enc, err := EncodeFrame(ts, payload)
	require.NoError(t, err)

	gotTS, gotPayload, err := DecodeFrame(enc)
	require.NoError(t, err)
	require.Equal(t, ts, gotTS)
	require.Equal(t, payload, gotPayload)
}

func TestDecodeFrameMalformed(t *testing.T) {
	_, _, err := DecodeFrame([]byte{0x40}) // claims 2-byte varint, only 1 byte present
	require.ErrorIs(t, err, hangerr.ErrMalformedEnvelope)

	_, _, err = DecodeFrame(nil)
	require.ErrorIs(t, err, hangerr.ErrMalformedEnvelope)
}

func TestEncodeFrameZeroAllocBeyondOutput(t *testing.T) {
	// EncodeFrame should allocate exactly one backing buffer (the
	// output); this is a behavioural smoke test, not a benchmark.
	enc, err := EncodeFrame(0, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00}, enc)

	allocs := testing.AllocsPerRun(100, func() { enc, _ = EncodeFrame(0, nil) })
	require.Equal(t, float64(1), allocs)
}
