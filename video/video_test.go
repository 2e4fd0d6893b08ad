package video

import (
	"context"
	"testing"

	"github.com/okdaichi/hang/catalog"
	"github.com/okdaichi/hang/media"
	"github.com/stretchr/testify/require"
)

func TestFilterSupported(t *testing.T) {
	renditions := map[string]catalog.VideoConfig{
		"sd": {Codec: "avc1", CodedWidth: 320, CodedHeight: 240},
		"hd": {Codec: "av01", CodedWidth: 1280, CodedHeight: 720},
	}
	decoder := probeFunc(func(cfg catalog.VideoConfig) bool { return cfg.Codec == "avc1" })

	supported := FilterSupported(decoder, renditions)
	require.Len(t, supported, 1)
	require.Contains(t, supported, "sd")
}

type probeFunc func(catalog.VideoConfig) bool

func (f probeFunc) Probe(cfg catalog.VideoConfig) bool { return f(cfg) }
func (probeFunc) Decode(context.Context, media.Frame) (DecodedFrame, error) {
	return DecodedFrame{}, nil
}

// Supported renditions sd (320x240) and hd (1280x720): target pixels
// 500000 selects hd, target 50000 selects sd.
func TestSelect_PixelBudget(t *testing.T) {
	supported := map[string]catalog.VideoConfig{
		"sd": {CodedWidth: 320, CodedHeight: 240},  // 76800 px
		"hd": {CodedWidth: 1280, CodedHeight: 720}, // 921600 px
	}

	name, _, ok := Select(supported, 500000)
	require.True(t, ok)
	require.Equal(t, "hd", name)

	name, _, ok = Select(supported, 50000)
	require.True(t, ok)
	require.Equal(t, "sd", name)
}

func TestSelect_NoBudgetPicksLargest(t *testing.T) {
	supported := map[string]catalog.VideoConfig{
		"sd": {CodedWidth: 320, CodedHeight: 240},
		"hd": {CodedWidth: 1280, CodedHeight: 720},
	}
	name, _, ok := Select(supported, 0)
	require.True(t, ok)
	require.Equal(t, "hd", name)
}

func TestSelect_FallsBackToLargestBelowBudget(t *testing.T) {
	supported := map[string]catalog.VideoConfig{
		"sd": {CodedWidth: 320, CodedHeight: 240},
	}
	name, _, ok := Select(supported, 1000000)
	require.True(t, ok)
	require.Equal(t, "sd", name)
}

func TestSelect_Empty(t *testing.T) {
	_, _, ok := Select(nil, 100)
	require.False(t, ok)
}
