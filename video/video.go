// Package video implements the video leg of a broadcast's media
// pipeline: rendition filtering and selection, a
// seamless dual-decoder switch driver, a two-frame
// presentation buffer, a clock-skew pacer
// and the renderer-facing output signals.
package video

import (
	"context"
	"sort"

	"github.com/okdaichi/hang/catalog"
	"github.com/okdaichi/hang/media"
)

// DecodedFrame is one platform-decoded video frame ready for
// presentation. Pixel format is left to the platform decoder; Data is
// opaque to this package.
type DecodedFrame struct {
	Timestamp media.Timestamp
	Width     int
	Height    int
	Data      []byte
}

// Decoder is the platform video decoder collaborator. Probe reports
// whether the platform can decode cfg without allocating a pipeline
// for it; decoding media is an explicit non-goal of this
// client, so production callers supply their own implementation.
type Decoder interface {
	Probe(cfg catalog.VideoConfig) bool
	Decode(ctx context.Context, frame media.Frame) (DecodedFrame, error)
}

// ActiveRendition names the rendition currently feeding the
// presentation buffer.
type ActiveRendition struct {
	Name   string
	Config catalog.VideoConfig
}

// Display is the currently presented frame's dimensions.
type Display struct {
	Width  int
	Height int
}

// FilterSupported probes decoder against every rendition in
// renditions and returns the subset it reports it can decode.
func FilterSupported(decoder Decoder, renditions map[string]catalog.VideoConfig) map[string]catalog.VideoConfig {
	out := make(map[string]catalog.VideoConfig, len(renditions))
	for name, cfg := range renditions {
		if decoder.Probe(cfg) {
			out[name] = cfg
		}
	}
	return out
}

// Select picks a rendition from supported for the given pixel budget:
// the smallest pixel count >= budget, falling back to the largest
// below budget, falling back to the first entry in name order.
// budget <= 0 means "no budget": the largest supported rendition
// wins. Returns ok == false if supported is empty.
func Select(supported map[string]catalog.VideoConfig, budget int) (name string, cfg catalog.VideoConfig, ok bool) {
	if len(supported) == 0 {
		return "", catalog.VideoConfig{}, false
	}

	names := make([]string, 0, len(supported))
	for n := range supported {
		names = append(names, n)
	}
	sort.Strings(names)

	if budget <= 0 {
		best := names[0]
		bestPixels := pixels(supported[best])
		for _, n := range names[1:] {
			if p := pixels(supported[n]); p > bestPixels {
				best = n
				bestPixels = p
			}
		}
		return best, supported[best], true
	}

	haveAbove := false
	var aboveName string
	var abovePixels int
	haveBelow := false
	var belowName string
	var belowPixels int

	for _, n := range names {
		p := pixels(supported[n])
		if p >= budget {
			if !haveAbove || p < abovePixels {
				haveAbove = true
				aboveName = n
				abovePixels = p
			}
		} else {
			if !haveBelow || p > belowPixels {
				haveBelow = true
				belowName = n
				belowPixels = p
			}
		}
	}

	switch {
	case haveAbove:
		return aboveName, supported[aboveName], true
	case haveBelow:
		return belowName, supported[belowName], true
	default:
		return names[0], supported[names[0]], true
	}
}

func pixels(cfg catalog.VideoConfig) int {
	return cfg.CodedWidth * cfg.CodedHeight
}
