package jitter

import (
	"context"
	"testing"
	"time"

	"github.com/okdaichi/hang/hangerr"
	"github.com/okdaichi/hang/media"
	"github.com/okdaichi/hang/transport/memory"
	"github.com/okdaichi/hang/wire"
	"github.com/stretchr/testify/require"
)

func envelope(t *testing.T, ts int64, payload string) []byte {
	t.Helper()
	raw, err := wire.EncodeFrame(media.FromDuration(time.Duration(ts)*time.Microsecond), []byte(payload))
	require.NoError(t, err)
	return raw
}

// A single group delivering three frames in order: decode() returns
// them in order, and the fourth call returns None once the track
// itself has no more groups to offer.
func TestConsumer_SingleGroupInOrder(t *testing.T) {
	track := memory.NewTrack("video", 0)
	g := track.OpenGroup(0)
	g.PushFrame(envelope(t, 0, "a"))
	g.PushFrame(envelope(t, 20000, "b"))
	g.PushFrame(envelope(t, 40000, "c"))
	g.Close(nil)
	track.CloseTrack()

	c := New(memory.NewTrackCursor(track), 100, nil)
	defer c.Close()

	ctx := context.Background()
	want := []int64{0, 20000, 40000}
	for _, ts := range want {
		f, ok, err := c.Decode(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, ts, f.Timestamp.Micros())
	}

	f, ok, err := c.Decode(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, media.Frame{}, f)
}

// Two overlapping groups interleaving with a B-frame-like reorder:
// decode() emits all four frames in nondecreasing timestamp order
// regardless of which group produced them.
func TestConsumer_OverlappingGroupsReorder(t *testing.T) {
	track := memory.NewTrack("video", 0)
	g0 := track.OpenGroup(0)
	g1 := track.OpenGroup(1)

	g0.PushFrame(envelope(t, 0, "g0-0"))
	g1.PushFrame(envelope(t, 20000, "g1-0"))
	g0.PushFrame(envelope(t, 40000, "g0-1"))
	g1.PushFrame(envelope(t, 60000, "g1-1"))
	g0.Close(nil)
	g1.Close(nil)
	track.CloseTrack()

	c := New(memory.NewTrackCursor(track), 100, nil)
	defer c.Close()

	ctx := context.Background()
	want := []int64{0, 20000, 40000, 60000}
	for _, ts := range want {
		f, ok, err := c.Decode(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, ts, f.Timestamp.Micros())
	}
}

// Group 0 stalls after two frames while group 1 delivers frames far
// ahead in time: decode() returns group 1's frame without waiting for
// group 0 to ever finish.
func TestConsumer_LatencyAdvancesPastStalledGroup(t *testing.T) {
	track := memory.NewTrack("video", 0)
	g0 := track.OpenGroup(0)
	g0.PushFrame(envelope(t, 0, "g0-0"))
	g0.PushFrame(envelope(t, 20000, "g0-1"))
	// g0 never closes: it has stalled.

	c := New(memory.NewTrackCursor(track), 200, nil)
	defer c.Close()

	ctx := context.Background()
	for _, ts := range []int64{0, 20000} {
		f, ok, err := c.Decode(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, ts, f.Timestamp.Micros())
	}

	g1 := track.OpenGroup(1)
	g1.PushFrame(envelope(t, 1000000, "g1-0"))

	decodeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	f, ok, err := c.Decode(decodeCtx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1000000), f.Timestamp.Micros())
}

// A group opened with a sequence already superseded by an
// active-group advance is dropped rather than delivered.
func TestConsumer_DropsGroupBelowActive(t *testing.T) {
	track := memory.NewTrack("video", 0)
	g0 := track.OpenGroup(0)
	g0.PushFrame(envelope(t, 0, "g0-0"))
	g0.Close(nil)

	c := New(memory.NewTrackCursor(track), 10, nil)
	defer c.Close()

	ctx := context.Background()
	f, ok, err := c.Decode(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(0), f.Timestamp.Micros())

	// Give the reader goroutine time to observe g0's EOF and advance
	// active before opening a group that should now be considered
	// stale.
	time.Sleep(50 * time.Millisecond)

	// g0's EOF advances active to 1; a group opened at seq 0 now
	// arrives late and must be dropped, not delivered.
	stale := track.OpenGroup(0)
	stale.PushFrame(envelope(t, 999, "late"))
	stale.Close(nil)

	g2 := track.OpenGroup(2)
	g2.PushFrame(envelope(t, 50000, "g2-0"))
	g2.Close(nil)
	track.CloseTrack()

	f, ok, err = c.Decode(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(50000), f.Timestamp.Micros())
}

// Only one Decode() call may be outstanding at a time.
func TestConsumer_ConcurrentDecodeRejected(t *testing.T) {
	track := memory.NewTrack("video", 0)
	c := New(memory.NewTrackCursor(track), 100, nil)
	defer c.Close()

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		c.Decode(context.Background())
		close(done)
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	_, _, err := c.Decode(context.Background())
	require.ErrorIs(t, err, hangerr.ErrMultipleDecoders)

	c.Close()
	<-done
}

// Close() resolves a blocked Decode() with (Frame{}, false, nil).
func TestConsumer_CloseUnblocksDecode(t *testing.T) {
	track := memory.NewTrack("video", 0)
	c := New(memory.NewTrackCursor(track), 100, nil)

	done := make(chan struct{})
	var gotOK bool
	var gotErr error
	go func() {
		_, gotOK, gotErr = c.Decode(context.Background())
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	c.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Decode did not unblock after Close")
	}
	require.NoError(t, gotErr)
	require.False(t, gotOK)
}
