package audio

import (
	"context"

	"github.com/okdaichi/hang/signal"
	"github.com/okdaichi/hang/transport"
)

// Caption holds the most recently received captions-track string.
// Received distinguishes "no caption frame has arrived yet" from an
// explicit empty string, both of which are valid states.
type Caption struct {
	Received bool
	Text     string
}

// CaptionTrack subscribes a catalog-announced captions track and
// exposes its most recent decoded string as a signal. Captions are
// not reordered: each frame is a standalone superseding value, read
// straight off the track with a transport.ScalarReader rather than a
// jitter buffer.
type CaptionTrack struct {
	value  *signal.Signal[Caption]
	cancel context.CancelFunc
	done   chan struct{}
}

// StartCaptionTrack subscribes trackName and begins decoding UTF-8
// caption frames until ctx is done or the track ends.
func StartCaptionTrack(ctx context.Context, broadcast transport.Broadcast, trackName string) (*CaptionTrack, error) {
	track, err := broadcast.Subscribe(ctx, trackName, 0)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := &CaptionTrack{
		value:  signal.New(Caption{}),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.run(runCtx, transport.NewScalarReader(track))
	return c, nil
}

func (c *CaptionTrack) run(ctx context.Context, reader *transport.ScalarReader) {
	defer close(c.done)
	defer reader.Close()
	for {
		text, err := reader.ReadString(ctx)
		if err != nil {
			c.value.Set(Caption{})
			return
		}
		c.value.Set(Caption{Received: true, Text: text})
	}
}

// Value exposes the latest caption as a signal.
func (c *CaptionTrack) Value() *signal.Signal[Caption] { return c.value }

// Close stops the caption track's goroutine and waits for it to exit.
func (c *CaptionTrack) Close() error {
	c.cancel()
	<-c.done
	return nil
}

// VoiceActivity holds the most recently received voice-activity
// boolean. Received distinguishes "no frame has arrived yet" from an
// explicit false reading.
type VoiceActivity struct {
	Received bool
	Speaking bool
}

// VoiceActivityTrack subscribes a catalog-announced voice-activity
// track and exposes its most recent single-byte boolean as a signal.
// Same single-value-per-frame pattern as CaptionTrack.
type VoiceActivityTrack struct {
	value  *signal.Signal[VoiceActivity]
	cancel context.CancelFunc
	done   chan struct{}
}

// StartVoiceActivityTrack subscribes trackName and begins decoding
// single-byte boolean frames until ctx is done or the track ends.
func StartVoiceActivityTrack(ctx context.Context, broadcast transport.Broadcast, trackName string) (*VoiceActivityTrack, error) {
	track, err := broadcast.Subscribe(ctx, trackName, 0)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	v := &VoiceActivityTrack{
		value:  signal.New(VoiceActivity{}),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go v.run(runCtx, transport.NewScalarReader(track))
	return v, nil
}

func (v *VoiceActivityTrack) run(ctx context.Context, reader *transport.ScalarReader) {
	defer close(v.done)
	defer reader.Close()
	for {
		speaking, err := reader.ReadBool(ctx)
		if err != nil {
			v.value.Set(VoiceActivity{})
			return
		}
		v.value.Set(VoiceActivity{Received: true, Speaking: speaking})
	}
}

// Value exposes the latest voice-activity reading as a signal.
func (v *VoiceActivityTrack) Value() *signal.Signal[VoiceActivity] { return v.value }

// Close stops the voice-activity track's goroutine and waits for it to
// exit.
func (v *VoiceActivityTrack) Close() error {
	v.cancel()
	<-v.done
	return nil
}
