package audio

import (
	"context"
	"testing"
	"time"

	"github.com/okdaichi/hang/media"
	"github.com/okdaichi/hang/transport/memory"
	"github.com/okdaichi/hang/wire"
	"github.com/stretchr/testify/require"
)

func pushScalar(t *testing.T, g *memory.Group, ts int64, payload []byte) {
	t.Helper()
	raw, err := wire.EncodeFrame(media.Timestamp(ts), payload)
	require.NoError(t, err)
	g.PushFrame(raw)
}

func TestCaptionTrack_EmptyStringIsDistinctFromUnset(t *testing.T) {
	bc := memory.NewBroadcast()
	track := bc.Track("captions")
	g := track.OpenGroup(0)

	c, err := StartCaptionTrack(context.Background(), bc, "captions")
	require.NoError(t, err)
	defer c.Close()

	require.False(t, c.Value().Peek().Received)

	pushScalar(t, g, 0, []byte(""))
	require.Eventually(t, func() bool {
		return c.Value().Peek().Received
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "", c.Value().Peek().Text)

	pushScalar(t, g, 1, []byte("hello"))
	require.Eventually(t, func() bool {
		return c.Value().Peek().Text == "hello"
	}, time.Second, 5*time.Millisecond)
}

func TestVoiceActivityTrack_DecodesBoolean(t *testing.T) {
	bc := memory.NewBroadcast()
	track := bc.Track("vad")
	g := track.OpenGroup(0)

	v, err := StartVoiceActivityTrack(context.Background(), bc, "vad")
	require.NoError(t, err)
	defer v.Close()

	pushScalar(t, g, 0, []byte{1})
	require.Eventually(t, func() bool {
		return v.Value().Peek().Received && v.Value().Peek().Speaking
	}, time.Second, 5*time.Millisecond)

	pushScalar(t, g, 1, []byte{0})
	require.Eventually(t, func() bool {
		return !v.Value().Peek().Speaking
	}, time.Second, 5*time.Millisecond)
}
