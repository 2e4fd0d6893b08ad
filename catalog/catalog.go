// Package catalog decodes the "catalog.json" track into a typed Root
// document. The catalog is not reordered: it is
// a superseding stream of whole documents, so it is consumed through a
// jitter.Consumer with latency 0, and only the newest successfully
// parsed document is kept.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/okdaichi/hang/jitter"
	"github.com/okdaichi/hang/observability"
	"github.com/okdaichi/hang/signal"
	"github.com/okdaichi/hang/transport"
)

// TrackName is the reserved track every broadcast publishes its
// catalog on.
const TrackName = "catalog.json"

// Priority is the advisory subscribe priority for the catalog track.
const Priority uint8 = 0

// VideoConfig describes one video rendition.
type VideoConfig struct {
	Codec              string  `json:"codec"`
	Description        string  `json:"description,omitempty"` // hex-encoded init data
	CodedWidth         int     `json:"codedWidth,omitempty"`
	CodedHeight        int     `json:"codedHeight,omitempty"`
	DisplayWidth       int     `json:"displayWidth,omitempty"`
	DisplayHeight      int     `json:"displayHeight,omitempty"`
	Framerate          float64 `json:"framerate,omitempty"`
	Bitrate            int     `json:"bitrate,omitempty"`
	OptimizeForLatency bool    `json:"optimizeForLatency,omitempty"`
	Rotation           int     `json:"rotation,omitempty"`
	Flip               bool    `json:"flip,omitempty"`
}

// AudioConfig describes one audio rendition.
type AudioConfig struct {
	Codec        string `json:"codec"`
	Description  string `json:"description,omitempty"`
	SampleRate   int    `json:"sampleRate"`
	ChannelCount int    `json:"channelCount"`
	Bitrate      int    `json:"bitrate,omitempty"`
}

// Display is the video source's natural display dimensions.
type Display struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Video is the catalog's video section: a set of renditions of one
// logical source.
type Video struct {
	Renditions map[string]VideoConfig `json:"renditions"`
	Priority   uint8                  `json:"priority,omitempty"`
	Display    *Display               `json:"display,omitempty"`
	Flip       bool                   `json:"flip,omitempty"`
	Detection  string                 `json:"detection,omitempty"`
}

// Audio is the catalog's audio section.
type Audio struct {
	Renditions map[string]AudioConfig `json:"renditions"`
	Priority   uint8                  `json:"priority,omitempty"`
	Captions   string                 `json:"captions,omitempty"`
	Speaking   string                 `json:"speaking,omitempty"`
}

// Root is the full catalog document. Chat, Location, User and Preview
// have no fixed schema here; they are kept as opaque JSON so callers
// with their own interpretation are not blocked (see DESIGN.md Open
// Question OQ-1).
type Root struct {
	Video    *Video          `json:"video,omitempty"`
	Audio    *Audio          `json:"audio,omitempty"`
	Chat     json.RawMessage `json:"chat,omitempty"`
	Location json.RawMessage `json:"location,omitempty"`
	User     json.RawMessage `json:"user,omitempty"`
	Preview  json.RawMessage `json:"preview,omitempty"`
}

// Fetcher subscribes to the catalog track and exposes the latest
// successfully parsed Root as a signal.
type Fetcher struct {
	root    *signal.Signal[*Root]
	rec     *observability.Recorder
	logger  *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
	lastRaw []byte
}

// Start subscribes broadcast's catalog track and begins decoding
// frames until ctx is done or the track ends.
func Start(ctx context.Context, broadcast transport.Broadcast, logger *slog.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	track, err := broadcast.Subscribe(ctx, TrackName, Priority)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	f := &Fetcher{
		root:   signal.New[*Root](nil),
		rec:    observability.NewRecorder(TrackName),
		logger: logger.With("track_name", TrackName),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	consumer := jitter.New(track, 0, f.logger)
	go f.run(runCtx, consumer)
	return f, nil
}

// Root exposes the latest parsed catalog document; nil until the
// first successful parse, and nil again once the broadcast goes
// offline.
func (f *Fetcher) Root() *signal.Signal[*Root] {
	return f.root
}

func (f *Fetcher) run(ctx context.Context, consumer *jitter.Consumer) {
	defer close(f.done)
	defer consumer.Close()

	for {
		frame, ok, err := consumer.Decode(ctx)
		if err != nil || !ok {
			f.root.Set(nil)
			return
		}

		if bytes.Equal(frame.Data, f.lastRaw) {
			// Same bytes as the last successful parse: no observable
			// change, so skip re-parsing and re-publishing: repeated
			// identical bytes must not retrigger downstream rebuilds.
			continue
		}

		var root Root
		if err := json.Unmarshal(frame.Data, &root); err != nil {
			f.logger.Warn("malformed catalog frame", "error", err)
			f.rec.CatalogParseError()
			// Malformed bytes clear the catalog but do not imply the
			// track itself ended; callers distinguish the two via Done.
			f.root.Set(nil)
			f.lastRaw = nil
			continue
		}

		f.lastRaw = append([]byte(nil), frame.Data...)
		f.root.Set(&root)
	}
}

// Done returns a channel closed once the fetcher's decode loop has
// exited, whether from ctx cancellation, Close, or the catalog track
// reaching EOF — the broadcast orchestrator uses it to distinguish "the
// catalog track itself ended" from "the latest document failed to
// parse".
func (f *Fetcher) Done() <-chan struct{} {
	return f.done
}

// Close stops the fetcher and waits for its goroutine to exit.
func (f *Fetcher) Close() error {
	f.cancel()
	<-f.done
	return nil
}
