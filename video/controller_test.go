package video

import (
	"context"
	"testing"
	"time"

	"github.com/okdaichi/hang/catalog"
	"github.com/okdaichi/hang/media"
	"github.com/okdaichi/hang/transport/memory"
	"github.com/okdaichi/hang/wire"
	"github.com/stretchr/testify/require"
)

type fakeVideoDecoder struct{}

func (fakeVideoDecoder) Probe(catalog.VideoConfig) bool { return true }
func (fakeVideoDecoder) Decode(_ context.Context, f media.Frame) (DecodedFrame, error) {
	return DecodedFrame{Timestamp: f.Timestamp, Width: 1, Height: 1, Data: f.Data}, nil
}

func pushVideoFrame(t *testing.T, g *memory.Group, ts int64) {
	t.Helper()
	raw, err := wire.EncodeFrame(media.Timestamp(ts), []byte("f"))
	require.NoError(t, err)
	g.PushFrame(raw)
}

// Switching the active rendition starts a pending pipeline that only
// takes over once it emits a frame whose timestamp strictly exceeds
// the last displayed one.
func TestDriver_SeamlessSwitch(t *testing.T) {
	bc := memory.NewBroadcast()
	hd := bc.Track("hd")
	hdGroup := hd.OpenGroup(0)
	sd := bc.Track("sd")
	sdGroup := sd.OpenGroup(0)
	_ = sd

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDriver(ctx, bc, fakeVideoDecoder{}, 10*time.Millisecond, nil)
	defer d.Close()

	require.NoError(t, d.SetRendition("hd", catalog.VideoConfig{CodedWidth: 1280, CodedHeight: 720}, 1))
	pushVideoFrame(t, hdGroup, 0)
	require.Eventually(t, func() bool {
		f := d.Frame().Peek()
		return f != nil && f.Timestamp == media.Timestamp(0)
	}, time.Second, 5*time.Millisecond)

	pushVideoFrame(t, hdGroup, 40000)
	require.Eventually(t, func() bool {
		f := d.Frame().Peek()
		return f != nil && f.Timestamp == media.Timestamp(40000)
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, d.SetRendition("sd", catalog.VideoConfig{CodedWidth: 320, CodedHeight: 240}, 1))

	// A pending-rendition frame no newer than the currently displayed
	// one must not take over.
	pushVideoFrame(t, sdGroup, 20000)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, "hd", d.Active().Peek().Name)

	// A strictly-newer frame promotes sd to active.
	pushVideoFrame(t, sdGroup, 60000)
	require.Eventually(t, func() bool {
		return d.Active().Peek().Name == "sd"
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		f := d.Frame().Peek()
		return f != nil && f.Timestamp == media.Timestamp(60000)
	}, time.Second, 5*time.Millisecond)
}
