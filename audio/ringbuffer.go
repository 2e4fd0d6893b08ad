package audio

import (
	"math"

	"github.com/okdaichi/hang/hangerr"
	"github.com/okdaichi/hang/media"
)

// RingBuffer is a fixed-capacity, per-channel PCM ring used as the
// render sink between a decoder driver and a pull-based audio
// renderer. It is not safe for concurrent use; callers
// serialize Write/Read themselves (the decoder driver is the sole
// writer, the renderer callback the sole reader, and the two never
// run concurrently in this port's single-goroutine-per-pipeline
// model).
type RingBuffer struct {
	capacity   int
	channels   int
	sampleRate int
	samples    [][]float64 // samples[channel][index], len == capacity

	refilling bool
	hasOrigin bool
	originTS  media.Timestamp // ts of the first write, maps to sample index 0
	readPos   int             // absolute sample index of the next read
	writePos  int             // absolute sample index one past the last written sample
}

// NewRingBuffer creates a buffer sized for latency milliseconds at
// sampleRate: capacity = ceil(sampleRate * latency_ms / 1000).
func NewRingBuffer(sampleRate, channels, latencyMs int) *RingBuffer {
	capacity := int(math.Ceil(float64(sampleRate) * float64(latencyMs) / 1000))
	if capacity < 1 {
		capacity = 1
	}
	samples := make([][]float64, channels)
	for c := range samples {
		samples[c] = make([]float64, capacity)
	}
	return &RingBuffer{
		capacity:   capacity,
		channels:   channels,
		sampleRate: sampleRate,
		samples:    samples,
		refilling:  true,
	}
}

// Refilling reports whether Read is currently muted pending pre-roll.
// Starts true, flips false the first time a write forces a trim.
func (r *RingBuffer) Refilling() bool { return r.refilling }

// Write maps ts to an absolute sample index relative to the first
// write and copies channels in. Samples before the read pointer are
// dropped; gaps are filled with zeros; on overflow the oldest queued
// samples are discarded to make room and refill mode is left.
func (r *RingBuffer) Write(ts media.Timestamp, chans [][]float32) error {
	if len(chans) != r.channels {
		return hangerr.ErrBufferMismatch
	}
	if !r.hasOrigin {
		r.originTS = ts
		r.hasOrigin = true
		r.readPos = 0
		r.writePos = 0
	}

	n := len(chans[0])
	for _, ch := range chans {
		if len(ch) != n {
			return hangerr.ErrBufferMismatch
		}
	}

	start := r.sampleIndex(ts)
	if start+n <= r.readPos {
		// Entirely before the read pointer: late arrival, discard.
		return nil
	}
	if start < r.readPos {
		// Partially late: trim the leading samples that have already
		// been consumed.
		skip := r.readPos - start
		for c := range chans {
			chans[c] = chans[c][skip:]
		}
		start = r.readPos
		n = len(chans[0])
		if n == 0 {
			return nil
		}
	}

	end := start + n
	if end-r.readPos > r.capacity {
		// Overflow: drop the oldest queued samples to make room.
		r.readPos = end - r.capacity
		r.refilling = false
	}

	// Zero the gap since the previous write so slots reused from an
	// earlier lap of the ring are not replayed.
	gapFrom := r.writePos
	if gapFrom < r.readPos {
		gapFrom = r.readPos
	}
	for i := gapFrom; i < start; i++ {
		for c := range r.samples {
			r.samples[c][r.slot(i)] = 0
		}
	}

	for c := range chans {
		for i := 0; i < n; i++ {
			r.samples[c][r.slot(start+i)] = float64(chans[c][i])
		}
	}
	if end > r.writePos {
		r.writePos = end
	}

	if r.writePos-r.readPos >= r.capacity {
		r.refilling = false
	}

	return nil
}

// Read copies up to len(out[c]) samples per channel from the read
// pointer forward, zero-filling any gap not yet written, and advances
// the pointer. It returns the number of samples written per channel,
// which may be less than requested if fewer are buffered, and refuses
// to emit anything while Refilling.
func (r *RingBuffer) Read(out [][]float32) (int, error) {
	if len(out) != r.channels {
		return 0, hangerr.ErrBufferMismatch
	}
	if r.refilling {
		return 0, nil
	}

	want := len(out[0])
	for _, ch := range out {
		if len(ch) != want {
			return 0, hangerr.ErrBufferMismatch
		}
	}

	available := r.writePos - r.readPos
	n := want
	if n > available {
		n = available
	}
	if n < 0 {
		n = 0
	}

	for c := range out {
		for i := 0; i < n; i++ {
			out[c][i] = float32(r.samples[c][r.slot(r.readPos+i)])
		}
	}
	r.readPos += n
	return n, nil
}

// sampleIndex maps a microsecond timestamp to an absolute sample
// index relative to the buffer's origin (the first write's timestamp).
func (r *RingBuffer) sampleIndex(ts media.Timestamp) int {
	deltaMicros := int64(ts) - int64(r.originTS)
	return int(deltaMicros * int64(r.sampleRate) / 1_000_000)
}

func (r *RingBuffer) slot(absolute int) int {
	m := absolute % r.capacity
	if m < 0 {
		m += r.capacity
	}
	return m
}
