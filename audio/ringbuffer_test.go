package audio

import (
	"testing"

	"github.com/okdaichi/hang/hangerr"
	"github.com/okdaichi/hang/media"
	"github.com/stretchr/testify/require"
)

func fill(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Fresh buffer yields zero samples until a single write reaches
// capacity; thereafter read returns non-silence.
func TestRingBuffer_RefillThenRead(t *testing.T) {
	rb := NewRingBuffer(1000, 1, 100) // capacity 100 @ 1000Hz

	out := [][]float32{make([]float32, 10)}
	n, err := rb.Read(out)
	require.NoError(t, err)
	require.Equal(t, 0, n, "refilling buffer must emit nothing")

	require.NoError(t, rb.Write(media.Timestamp(0), [][]float32{fill(100, 1.0)}))
	require.False(t, rb.Refilling())

	out2 := [][]float32{make([]float32, 10)}
	n, err = rb.Read(out2)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	for _, s := range out2[0] {
		require.NotEqual(t, float32(0), s)
	}
}

// Capacity 100, write 100 at ts 0, then write 50 at ts 100ms:
// refilling flips false, read of 50 returns the previous block's
// tail, then read of 50 returns the newly written block.
func TestRingBuffer_Overflow(t *testing.T) {
	rb := NewRingBuffer(1000, 1, 100) // capacity 100 samples, 1 sample/ms

	require.NoError(t, rb.Write(media.Timestamp(0), [][]float32{fill(100, 1.0)}))
	require.False(t, rb.Refilling())

	require.NoError(t, rb.Write(media.FromMillis(100), [][]float32{fill(50, 2.0)}))
	require.False(t, rb.Refilling())

	out := [][]float32{make([]float32, 50)}
	n, err := rb.Read(out)
	require.NoError(t, err)
	require.Equal(t, 50, n)
	for _, s := range out[0] {
		require.Equal(t, float32(1.0), s)
	}

	out2 := [][]float32{make([]float32, 50)}
	n, err = rb.Read(out2)
	require.NoError(t, err)
	require.Equal(t, 50, n)
	for _, s := range out2[0] {
		require.Equal(t, float32(2.0), s)
	}
}

// Writing at sample index N+k after a write ending at N leaves exactly
// k zero samples in between.
func TestRingBuffer_GapFill(t *testing.T) {
	rb := NewRingBuffer(1000, 1, 25) // capacity 25: the two writes fill it and end pre-roll

	require.NoError(t, rb.Write(media.Timestamp(0), [][]float32{fill(10, 1.0)}))
	// A 5-sample gap (5ms at 1000Hz) before the next write.
	require.NoError(t, rb.Write(media.FromMillis(15), [][]float32{fill(10, 2.0)}))

	out := [][]float32{make([]float32, 25)}
	n, err := rb.Read(out)
	require.NoError(t, err)
	require.Equal(t, 25, n) // samples 0-24 are written

	for i := 0; i < 10; i++ {
		require.Equal(t, float32(1.0), out[0][i])
	}
	for i := 10; i < 15; i++ {
		require.Equal(t, float32(0), out[0][i], "gap sample %d", i)
	}
	for i := 15; i < 20; i++ {
		require.Equal(t, float32(2.0), out[0][i])
	}
}

// Writes whose mapped index < current read pointer are no-ops.
func TestRingBuffer_LateArrivalDiscard(t *testing.T) {
	rb := NewRingBuffer(1000, 1, 100)

	require.NoError(t, rb.Write(media.Timestamp(0), [][]float32{fill(100, 1.0)}))
	require.False(t, rb.Refilling())

	out := [][]float32{make([]float32, 60)}
	n, err := rb.Read(out)
	require.NoError(t, err)
	require.Equal(t, 60, n)

	// This write's samples (indices 10-19) are entirely behind the
	// read pointer (now at 60): it must be a no-op.
	require.NoError(t, rb.Write(media.FromMillis(10), [][]float32{fill(10, 9.0)}))

	out2 := [][]float32{make([]float32, 40)}
	n, err = rb.Read(out2)
	require.NoError(t, err)
	require.Equal(t, 40, n)
	for _, s := range out2[0] {
		require.Equal(t, float32(1.0), s)
	}
}

func TestRingBuffer_ChannelMismatch(t *testing.T) {
	rb := NewRingBuffer(1000, 2, 100)
	err := rb.Write(media.Timestamp(0), [][]float32{fill(10, 1.0)})
	require.ErrorIs(t, err, hangerr.ErrBufferMismatch)
}
