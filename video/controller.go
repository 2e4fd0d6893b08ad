package video

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/okdaichi/hang/catalog"
	"github.com/okdaichi/hang/jitter"
	"github.com/okdaichi/hang/observability"
	"github.com/okdaichi/hang/signal"
	"github.com/okdaichi/hang/transport"
)

// pipeline is one rendition's subscription, Frame Consumer and
// decoder goroutine.
type pipeline struct {
	name   string
	cfg    catalog.VideoConfig
	cancel context.CancelFunc
	done   chan struct{}
}

// Driver owns the seamless dual-decoder switch, the presentation
// buffer it feeds and the pacer that times each frame's display,
// exposing the renderer-facing frame/display/rendition signals.
type Driver struct {
	ctx           context.Context
	broadcast     transport.Broadcast
	decoder       Decoder
	renderLatency time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	buffer  PresentationBuffer
	pacer   *Pacer
	active  *pipeline
	pending *pipeline

	frame   *signal.Signal[*DecodedFrame]
	display *signal.Signal[*Display]
	rend    *signal.Signal[*ActiveRendition]
}

// NewDriver creates a Driver bound to ctx's lifetime; call SetRendition
// whenever the selector chooses a new target.
func NewDriver(ctx context.Context, broadcast transport.Broadcast, decoder Decoder, renderLatency time.Duration, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		ctx:           ctx,
		broadcast:     broadcast,
		decoder:       decoder,
		renderLatency: renderLatency,
		logger:        logger,
		pacer:         NewPacer(nil),
		frame:         signal.New[*DecodedFrame](nil),
		display:       signal.New[*Display](nil),
		rend:          signal.New[*ActiveRendition](nil),
	}
}

// Frame is the currently due-for-display decoded frame.
func (d *Driver) Frame() *signal.Signal[*DecodedFrame] { return d.frame }

// Display is the currently presented frame's dimensions.
func (d *Driver) Display() *signal.Signal[*Display] { return d.display }

// Active names the rendition currently feeding the presentation
// buffer.
func (d *Driver) Active() *signal.Signal[*ActiveRendition] { return d.rend }

// SetRendition starts a pending pipeline for (name, cfg) unless it is
// already active or already pending. The pending pipeline is promoted
// to active — and the previous active pipeline closed — the first
// time it emits a frame with a timestamp strictly greater than the
// currently displayed one.
func (d *Driver) SetRendition(name string, cfg catalog.VideoConfig, priority uint8) error {
	d.mu.Lock()
	if d.active != nil && d.active.name == name {
		d.mu.Unlock()
		return nil
	}
	if d.pending != nil && d.pending.name == name {
		d.mu.Unlock()
		return nil
	}
	if d.pending != nil {
		d.pending.cancel()
		d.pending = nil
	}
	d.mu.Unlock()

	track, err := d.broadcast.Subscribe(d.ctx, name, priority)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(d.ctx)
	p := &pipeline{name: name, cfg: cfg, cancel: cancel, done: make(chan struct{})}

	d.mu.Lock()
	if d.active == nil {
		d.active = p
		d.rend.Set(&ActiveRendition{Name: name, Config: cfg})
	} else {
		d.pending = p
	}
	d.mu.Unlock()

	consumer := jitter.New(track, int(d.renderLatency.Milliseconds()), d.logger)
	go d.run(runCtx, p, consumer)
	return nil
}

func (d *Driver) run(ctx context.Context, p *pipeline, consumer *jitter.Consumer) {
	defer close(p.done)
	defer consumer.Close()

	rec := observability.NewRecorder(p.name)
	jitterTerm := Jitter(d.renderLatency, p.cfg.Framerate)

	for {
		frame, ok, err := consumer.Decode(ctx)
		if err != nil {
			d.logger.Warn("consumer decode error", "track_name", p.name, "error", err)
			return
		}
		if !ok {
			return
		}

		decoded, err := d.decoder.Decode(ctx, frame)
		if err != nil {
			d.logger.Warn("decoder error", "track_name", p.name, "error", err)
			rec.DecoderError()
			continue
		}

		d.mu.Lock()
		if d.pending == p {
			currentTS := d.buffer.Current()
			if currentTS == nil || decoded.Timestamp > currentTS.Timestamp {
				if d.active != nil {
					d.active.cancel()
				}
				d.active = p
				d.pending = nil
				d.rend.Set(&ActiveRendition{Name: p.name, Config: p.cfg})
			} else {
				// Not yet safe to promote: drop this frame and wait for
				// one whose timestamp clears the currently displayed
				// frame.
				d.mu.Unlock()
				continue
			}
		}
		if d.active != p {
			d.mu.Unlock()
			continue
		}

		d.pacer.Observe(decoded.Timestamp)
		due := d.pacer.Due(decoded.Timestamp, jitterTerm)
		d.mu.Unlock()

		if wait := time.Until(due); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
		}

		d.mu.Lock()
		if d.active == p {
			if displayed := d.buffer.Push(decoded, jitterTerm == 0); displayed != nil {
				d.frame.Set(displayed)
				d.display.Set(&Display{Width: displayed.Width, Height: displayed.Height})
			}
		}
		d.mu.Unlock()
		rec.FrameBuffered()
	}
}

// Close tears down the active and pending pipelines, if any.
func (d *Driver) Close() error {
	d.mu.Lock()
	active, pending := d.active, d.pending
	d.active, d.pending = nil, nil
	d.mu.Unlock()

	if active != nil {
		active.cancel()
		<-active.done
	}
	if pending != nil {
		pending.cancel()
		<-pending.done
	}
	return nil
}
