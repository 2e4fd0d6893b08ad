package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/okdaichi/hang/media"
	"github.com/okdaichi/hang/transport/memory"
	"github.com/okdaichi/hang/wire"
	"github.com/stretchr/testify/require"
)

func pushCatalog(t *testing.T, g *memory.Group, ts int64, json string) {
	t.Helper()
	raw, err := wire.EncodeFrame(media.Timestamp(ts), []byte(json))
	require.NoError(t, err)
	g.PushFrame(raw)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestFetcher_ParsesCatalog(t *testing.T) {
	bc := memory.NewBroadcast()
	track := bc.Track(TrackName)
	g := track.OpenGroup(0)

	f, err := Start(context.Background(), bc, nil)
	require.NoError(t, err)
	defer f.Close()

	pushCatalog(t, g, 0, `{"video":{"renditions":{"hd":{"codec":"avc1","codedWidth":1280,"codedHeight":720}}}}`)

	waitFor(t, time.Second, func() bool { return f.Root().Peek() != nil })
	root := f.Root().Peek()
	require.NotNil(t, root.Video)
	require.Contains(t, root.Video.Renditions, "hd")
}

func TestFetcher_MalformedJSONClearsCatalog(t *testing.T) {
	bc := memory.NewBroadcast()
	track := bc.Track(TrackName)
	g := track.OpenGroup(0)

	f, err := Start(context.Background(), bc, nil)
	require.NoError(t, err)
	defer f.Close()

	pushCatalog(t, g, 0, `{"audio":{"renditions":{"opus":{"codec":"opus","sampleRate":48000,"channelCount":2}}}}`)
	waitFor(t, time.Second, func() bool { return f.Root().Peek() != nil })

	pushCatalog(t, g, 1, `{not valid json`)
	waitFor(t, time.Second, func() bool { return f.Root().Peek() == nil })
}

func TestFetcher_IdempotentOnRepeatedBytes(t *testing.T) {
	bc := memory.NewBroadcast()
	track := bc.Track(TrackName)
	g := track.OpenGroup(0)

	f, err := Start(context.Background(), bc, nil)
	require.NoError(t, err)
	defer f.Close()

	doc := `{"video":{"renditions":{"sd":{"codec":"avc1","codedWidth":320,"codedHeight":240}}}}`
	pushCatalog(t, g, 0, doc)
	waitFor(t, time.Second, func() bool { return f.Root().Peek() != nil })
	first := f.Root().Peek()

	pushCatalog(t, g, 1, doc)
	time.Sleep(50 * time.Millisecond)

	require.Same(t, first, f.Root().Peek())
}
