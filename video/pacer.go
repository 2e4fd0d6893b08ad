package video

import (
	"time"

	"github.com/okdaichi/hang/media"
)

// Pacer estimates the clock skew between a frame's embedded timestamp
// and wall-clock arrival, so the driver can sleep until a frame's due
// presentation time. It tracks the smallest observed
// `now - ts` since the pipeline started; a smaller skew only ever
// makes presentation earlier (closer to live), never later.
type Pacer struct {
	now func() time.Time

	haveReference bool
	reference     time.Duration // smallest observed now-ts
}

// NewPacer creates a Pacer using now for the wall clock (time.Now in
// production; a fake in tests).
func NewPacer(now func() time.Time) *Pacer {
	if now == nil {
		now = time.Now
	}
	return &Pacer{now: now}
}

// Observe records a frame's timestamp against the current wall clock,
// tightening the skew estimate if this arrival is earlier relative to
// its timestamp than any seen so far.
func (p *Pacer) Observe(ts media.Timestamp) {
	skew := time.Duration(p.now().UnixMicro())*time.Microsecond - ts.Duration()
	if !p.haveReference || skew < p.reference {
		p.haveReference = true
		p.reference = skew
	}
}

// Due returns the wall-clock time a frame at ts with the given jitter
// term should be presented: reference + ts + jitter.
func (p *Pacer) Due(ts media.Timestamp, jitter time.Duration) time.Time {
	epoch := time.UnixMicro(0)
	return epoch.Add(p.reference + ts.Duration() + jitter)
}

// Jitter derives the presentation buffer's jitter term from the
// render latency target and a rendition's framerate:
// `latency - 1000/framerate`, clamped to >= 0. A catalog entry with no
// declared framerate (<= 0) has no frame period to subtract, so the
// buffer runs at zero jitter: straight pass-through display.
func Jitter(latency time.Duration, framerate float64) time.Duration {
	if framerate <= 0 {
		return 0
	}
	framePeriod := time.Duration(1000/framerate) * time.Millisecond
	j := latency - framePeriod
	if j < 0 {
		return 0
	}
	return j
}
