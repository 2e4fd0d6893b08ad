// Package audio implements the audio leg of a broadcast's media
// pipeline: a decoder driver that turns a subscribed rendition track
// into decoded PCM, the PCM ring buffer render sink, and the
// captions/voice-activity sub-tracks.
package audio

import (
	"context"
	"log/slog"
	"time"

	"github.com/okdaichi/hang/catalog"
	"github.com/okdaichi/hang/hangerr"
	"github.com/okdaichi/hang/jitter"
	"github.com/okdaichi/hang/media"
	"github.com/okdaichi/hang/observability"
	"github.com/okdaichi/hang/transport"
)

// JitterUnderhead is how far below the render buffer's latency target
// the Frame Consumer's latency is set by default, so the decoder has a
// head start on the renderer.
const JitterUnderhead = 25 * time.Millisecond

// PCMBlock is one decoded block of planar PCM (one slice per channel),
// ready to post into a RingBuffer.
type PCMBlock struct {
	Timestamp media.Timestamp
	Channels  [][]float32
}

// Decoder is the platform audio decoder collaborator. Decoding media
// is an explicit non-goal of this client; production callers supply
// their own implementation (a cgo binding, a WASM codec, whatever the
// host platform offers).
type Decoder interface {
	Decode(ctx context.Context, frame media.Frame) (PCMBlock, error)
}

// Driver owns one rendition's subscription, Frame Consumer and
// decoder, posting decoded PCM into Sink.
type Driver struct {
	sink     *RingBuffer
	decoder  Decoder
	consumer *jitter.Consumer
	rec      *observability.Recorder
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// StartDriver subscribes trackName at priority, wraps it in a Frame
// Consumer whose latency trails renderLatency by JitterUnderhead
// (clamped to zero), and begins decoding into sink.
func StartDriver(ctx context.Context, broadcast transport.Broadcast, trackName string, priority uint8, cfg catalog.AudioConfig, renderLatency time.Duration, decoder Decoder, sink *RingBuffer, logger *slog.Logger) (*Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	track, err := broadcast.Subscribe(ctx, trackName, priority)
	if err != nil {
		return nil, err
	}

	jitterLatency := renderLatency - JitterUnderhead
	if jitterLatency < 0 {
		jitterLatency = 0
	}

	runCtx, cancel := context.WithCancel(ctx)
	d := &Driver{
		sink:     sink,
		decoder:  decoder,
		consumer: jitter.New(track, int(jitterLatency.Milliseconds()), logger),
		rec:      observability.NewRecorder(trackName),
		logger:   logger.With("track_name", trackName),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go d.run(runCtx)
	return d, nil
}

func (d *Driver) run(ctx context.Context) {
	defer close(d.done)
	defer d.consumer.Close()

	for {
		frame, ok, err := d.consumer.Decode(ctx)
		if err != nil {
			d.logger.Warn("consumer decode error", "error", err)
			return
		}
		if !ok {
			return
		}

		d.rec.FrameBuffered()
		block, err := d.decoder.Decode(ctx, frame)
		if err != nil {
			d.logger.Warn("decoder error", "error", err)
			d.rec.DecoderError()
			continue
		}

		if err := d.sink.Write(block.Timestamp, block.Channels); err != nil {
			if err == hangerr.ErrBufferMismatch {
				d.logger.Error("render sink channel mismatch", "error", err)
				return
			}
		}
	}
}

// Close stops the driver's goroutine and waits for it to exit.
func (d *Driver) Close() error {
	d.cancel()
	<-d.done
	return nil
}
