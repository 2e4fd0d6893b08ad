package video

import (
	"testing"

	"github.com/okdaichi/hang/media"
	"github.com/stretchr/testify/require"
)

func TestPresentationBuffer_ZeroJitterDisplaysImmediately(t *testing.T) {
	var buf PresentationBuffer
	d1 := buf.Push(DecodedFrame{Timestamp: media.Timestamp(0)}, true)
	require.NotNil(t, d1)
	d2 := buf.Push(DecodedFrame{Timestamp: media.Timestamp(10)}, true)
	require.NotNil(t, d2)
	require.Equal(t, media.Timestamp(10), buf.Current().Timestamp)
}

func TestPresentationBuffer_DropsOlderThanCurrent(t *testing.T) {
	var buf PresentationBuffer
	buf.Push(DecodedFrame{Timestamp: media.Timestamp(100)}, false)
	displayed := buf.Push(DecodedFrame{Timestamp: media.Timestamp(50)}, false)
	require.Nil(t, displayed)
	require.Equal(t, media.Timestamp(100), buf.Current().Timestamp)
}

func TestPresentationBuffer_HoldsThenPromotes(t *testing.T) {
	var buf PresentationBuffer
	displayed := buf.Push(DecodedFrame{Timestamp: media.Timestamp(0)}, false)
	require.NotNil(t, displayed) // first frame always becomes current

	displayed = buf.Push(DecodedFrame{Timestamp: media.Timestamp(40)}, false)
	require.Nil(t, displayed) // held as next, nothing displays yet

	displayed = buf.Push(DecodedFrame{Timestamp: media.Timestamp(20)}, false)
	require.NotNil(t, displayed) // promotes the original current (ts 0)
	require.Equal(t, media.Timestamp(0), displayed.Timestamp)
	require.Equal(t, media.Timestamp(20), buf.Current().Timestamp)
}
