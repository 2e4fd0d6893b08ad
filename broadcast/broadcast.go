// Package broadcast implements the orchestrator that wires one
// consumed broadcast's catalog to its audio and video pipelines and
// exposes an overall status.
package broadcast

import (
	"context"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/okdaichi/hang/audio"
	"github.com/okdaichi/hang/catalog"
	"github.com/okdaichi/hang/signal"
	"github.com/okdaichi/hang/transport"
	"github.com/okdaichi/hang/video"
	"golang.org/x/sync/errgroup"
)

// Status is the orchestrator's lifecycle state.
type Status int

const (
	StatusOffline Status = iota
	StatusLoading
	StatusLive
)

func (s Status) String() string {
	switch s {
	case StatusOffline:
		return "offline"
	case StatusLoading:
		return "loading"
	case StatusLive:
		return "live"
	default:
		return "unknown"
	}
}

// Decoders bundles the platform codecs an orchestrated Consumer feeds
// its audio and video drivers. Decoding media is an explicit non-goal
// of this client; callers supply their own.
type Decoders struct {
	Audio audio.Decoder
	Video video.Decoder
}

// Consumer orchestrates one named broadcast end to end: connection →
// announce gating → catalog → audio/video pipelines.
type Consumer struct {
	status  *signal.Signal[Status]
	logger  *slog.Logger
	decoder Decoders

	pixelBudget   int
	renderLatency time.Duration

	cancel context.CancelFunc
	eg     *errgroup.Group
	done   chan struct{}

	mu           sync.Mutex
	fetcher      *catalog.Fetcher
	audioDriver  *audio.Driver
	videoDriver  *video.Driver
	captions     *audio.CaptionTrack
	voiceActive  *audio.VoiceActivityTrack
	lastVideo    map[string]catalog.VideoConfig
	lastAudio    map[string]catalog.AudioConfig
	lastCaptions string
	lastSpeaking string
}

// Start begins orchestrating name over conn. If reload is true,
// subsystem activation gates on an exact-match active announcement
// for name; otherwise the broadcast is treated as active immediately.
// renderLatency sizes the audio render buffer and feeds the video
// pacer's jitter term; pixelBudget selects the video rendition.
func Start(ctx context.Context, conn transport.Connection, name string, reload bool, decoders Decoders, renderLatency time.Duration, pixelBudget int, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("broadcast", name)

	runCtx, cancel := context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(runCtx)

	c := &Consumer{
		status:        signal.New(StatusOffline),
		logger:        logger,
		decoder:       decoders,
		pixelBudget:   pixelBudget,
		renderLatency: renderLatency,
		cancel:        cancel,
		eg:            eg,
		done:          make(chan struct{}),
	}
	c.status.Set(StatusLoading)

	bc, err := conn.Consume(runCtx, name)
	if err != nil {
		cancel()
		return nil, err
	}

	eg.Go(func() error {
		return c.run(egCtx, conn, bc, name, reload)
	})

	go func() {
		_ = eg.Wait()
		c.status.Set(StatusOffline)
		close(c.done)
	}()

	return c, nil
}

// Status exposes the orchestrator's lifecycle signal.
func (c *Consumer) Status() *signal.Signal[Status] { return c.status }

// Captions exposes the active captions sub-track's signal, or nil if
// the catalog names no captions track right now.
func (c *Consumer) Captions() *signal.Signal[audio.Caption] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.captions == nil {
		return nil
	}
	return c.captions.Value()
}

// VoiceActivity exposes the active voice-activity sub-track's signal,
// or nil if the catalog names no voice-activity track right now.
func (c *Consumer) VoiceActivity() *signal.Signal[audio.VoiceActivity] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.voiceActive == nil {
		return nil
	}
	return c.voiceActive.Value()
}

func (c *Consumer) run(ctx context.Context, conn transport.Connection, bc transport.Broadcast, name string, reload bool) error {
	if reload {
		return c.runWithAnnounceGating(ctx, conn, bc, name)
	}
	return c.runActive(ctx, bc)
}

// runWithAnnounceGating watches conn's announce stream and (re)starts
// the active subsystems only while name has an exact-match active
// announcement.
func (c *Consumer) runWithAnnounceGating(ctx context.Context, conn transport.Connection, bc transport.Broadcast, name string) error {
	stream, err := conn.Announced(ctx, name)
	if err != nil {
		return err
	}
	defer stream.Close()

	var activeCancel context.CancelFunc
	stopActive := func() {
		if activeCancel != nil {
			activeCancel()
			activeCancel = nil
		}
	}
	defer stopActive()

	for {
		ann, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		if ann.Suffix != name {
			continue
		}
		if ann.Active {
			stopActive()
			activeCtx, cancel := context.WithCancel(ctx)
			activeCancel = cancel
			c.eg.Go(func() error { return c.runActive(activeCtx, bc) })
		} else {
			stopActive()
		}
	}
}

// runActive subscribes the catalog track and reactively rebuilds the
// audio/video pipelines as it changes.
func (c *Consumer) runActive(ctx context.Context, bc transport.Broadcast) error {
	fetcher, err := catalog.Start(ctx, bc, c.logger)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.fetcher = fetcher
	c.mu.Unlock()
	defer fetcher.Close()
	defer c.teardownPipelines()

	becameLive := false
	root := fetcher.Root()
	for {
		v := root.Peek()
		if v != nil {
			becameLive = true
			c.status.Set(StatusLive)
		} else if becameLive {
			// The catalog was cleared (e.g. a malformed document):
			// back to loading until the next good document.
			c.status.Set(StatusLoading)
		}
		c.rebuild(ctx, bc, v)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-fetcher.Done():
			// The catalog track itself ended (or the fetcher was torn
			// down); the broadcast is no longer live.
			return nil
		case <-waitChanged(ctx, root):
		}
	}
}

// waitChanged returns a channel closed the next time root's value
// changes or ctx is done, without registering an Effect dependency
// (the orchestrator drives its own poll loop rather than nesting a
// reactive Effect).
func waitChanged(ctx context.Context, root *signal.Signal[*catalog.Root]) <-chan struct{} {
	ch := make(chan struct{})
	prev := root.Peek()
	go func() {
		defer close(ch)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if root.Peek() != prev {
					return
				}
			}
		}
	}()
	return ch
}

func (c *Consumer) rebuild(ctx context.Context, bc transport.Broadcast, root *catalog.Root) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if root == nil || root.Video == nil || len(root.Video.Renditions) == 0 {
		if c.videoDriver != nil {
			c.videoDriver.Close()
			c.videoDriver = nil
			c.lastVideo = nil
		}
	} else if c.decoder.Video != nil && !reflect.DeepEqual(root.Video.Renditions, c.lastVideo) {
		supported := video.FilterSupported(c.decoder.Video, root.Video.Renditions)
		name, cfg, ok := video.Select(supported, c.pixelBudget)
		if ok {
			if c.videoDriver == nil {
				c.videoDriver = video.NewDriver(ctx, bc, c.decoder.Video, c.renderLatency, c.logger)
			}
			if err := c.videoDriver.SetRendition(name, cfg, root.Video.Priority); err != nil {
				c.logger.Warn("video rendition subscribe failed", "error", err)
			}
			c.lastVideo = root.Video.Renditions
		}
	}

	if root == nil || root.Audio == nil || len(root.Audio.Renditions) == 0 {
		if c.audioDriver != nil {
			c.audioDriver.Close()
			c.audioDriver = nil
			c.lastAudio = nil
		}
	} else if c.decoder.Audio != nil && !reflect.DeepEqual(root.Audio.Renditions, c.lastAudio) {
		name, cfg, ok := firstAudioRendition(root.Audio.Renditions)
		if ok {
			if c.audioDriver != nil {
				c.audioDriver.Close()
				c.audioDriver = nil
			}
			sink := audio.NewRingBuffer(cfg.SampleRate, cfg.ChannelCount, int(c.renderLatency.Milliseconds()))
			driver, err := audio.StartDriver(ctx, bc, name, root.Audio.Priority, cfg, c.renderLatency, c.decoder.Audio, sink, c.logger)
			if err != nil {
				c.logger.Warn("audio rendition subscribe failed", "error", err)
			} else {
				c.audioDriver = driver
			}
			c.lastAudio = root.Audio.Renditions
		}
	}

	c.rebuildCaptions(ctx, bc, root)
	c.rebuildVoiceActivity(ctx, bc, root)
}

func (c *Consumer) rebuildCaptions(ctx context.Context, bc transport.Broadcast, root *catalog.Root) {
	ref := ""
	if root != nil && root.Audio != nil {
		ref = root.Audio.Captions
	}
	if ref == c.lastCaptions {
		return
	}
	if c.captions != nil {
		c.captions.Close()
		c.captions = nil
	}
	c.lastCaptions = ref
	if ref == "" {
		return
	}
	track, err := audio.StartCaptionTrack(ctx, bc, ref)
	if err != nil {
		c.logger.Warn("captions subscribe failed", "error", err)
		return
	}
	c.captions = track
}

func (c *Consumer) rebuildVoiceActivity(ctx context.Context, bc transport.Broadcast, root *catalog.Root) {
	ref := ""
	if root != nil && root.Audio != nil {
		ref = root.Audio.Speaking
	}
	if ref == c.lastSpeaking {
		return
	}
	if c.voiceActive != nil {
		c.voiceActive.Close()
		c.voiceActive = nil
	}
	c.lastSpeaking = ref
	if ref == "" {
		return
	}
	track, err := audio.StartVoiceActivityTrack(ctx, bc, ref)
	if err != nil {
		c.logger.Warn("voice-activity subscribe failed", "error", err)
		return
	}
	c.voiceActive = track
}

// firstAudioRendition picks the rendition sorting first by name, a
// stable stand-in for the renderer's own selection policy (there is no
// pixel-budget-style selector for audio the way video.Select has one).
func firstAudioRendition(renditions map[string]catalog.AudioConfig) (string, catalog.AudioConfig, bool) {
	if len(renditions) == 0 {
		return "", catalog.AudioConfig{}, false
	}
	names := make([]string, 0, len(renditions))
	for name := range renditions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names[0], renditions[names[0]], true
}

func (c *Consumer) teardownPipelines() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.videoDriver != nil {
		c.videoDriver.Close()
		c.videoDriver = nil
	}
	if c.audioDriver != nil {
		c.audioDriver.Close()
		c.audioDriver = nil
	}
	if c.captions != nil {
		c.captions.Close()
		c.captions = nil
	}
	if c.voiceActive != nil {
		c.voiceActive.Close()
		c.voiceActive = nil
	}
	c.lastVideo, c.lastAudio = nil, nil
	c.lastCaptions, c.lastSpeaking = "", ""
}

// Close tears the orchestrator and all its subsystems down.
func (c *Consumer) Close() error {
	c.cancel()
	<-c.done
	return nil
}
