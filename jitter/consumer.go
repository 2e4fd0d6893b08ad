// Package jitter implements the Frame Consumer: the reorder- and
// latency-bounded queue that turns a Track's groups of frames into a
// single ordered stream of media.Frame suitable for a decoder. It is
// the one component with meaningful shared mutable state in the whole
// client: one mutex guards the buffered-frame queue, the active group
// sequence, the live-group set and the single decode() waiter.
package jitter

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/okdaichi/hang/hangerr"
	"github.com/okdaichi/hang/media"
	"github.com/okdaichi/hang/signal"
	"github.com/okdaichi/hang/transport"
	"github.com/okdaichi/hang/wire"
)

// Consumer reorders a Track's groups into a single frame stream
// bounded by a mutable latency target.
type Consumer struct {
	track   transport.Track
	latency *signal.Signal[time.Duration]
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	queue    frameHeap
	active   uint64 // the active group sequence, A
	groups   map[uint64]*liveGroup
	waiter     chan struct{} // closed to wake a pending Decode(); nil when none pending
	decoding   bool          // true while a Decode() call is outstanding
	closed     bool
	trackEnded bool // true once the underlying Track will open no further groups

	wg sync.WaitGroup
}

// liveGroup tracks one group's reader goroutine.
type liveGroup struct {
	seq    uint64
	cancel context.CancelFunc
	done   bool // true once the reader goroutine reached EOF/error
}

// New starts consuming track, reordering frames into a latency-bounded
// queue. latencyMs is the initial latency target in milliseconds;
// Latency() returns a signal the caller may Set to retune it live.
func New(track transport.Track, latencyMs int, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		track:   track,
		latency: signal.New(time.Duration(latencyMs) * time.Millisecond),
		logger:  logger.With("track_name", track.Name()),
		ctx:     ctx,
		cancel:  cancel,
		groups:  make(map[uint64]*liveGroup),
	}
	c.wg.Add(1)
	go c.fetchGroups()
	return c
}

// Latency exposes the mutable latency target as a signal.
func (c *Consumer) Latency() *signal.Signal[time.Duration] {
	return c.latency
}

// fetchGroups is the one task that fetches new groups from the track.
func (c *Consumer) fetchGroups() {
	defer c.wg.Done()
	for {
		g, err := c.track.NextGroup(c.ctx)
		if err != nil {
			// Transport closed or Consumer.Close cancelled ctx: no
			// further groups will ever open. Wake a blocked Decode()
			// once every live group has also finished draining.
			c.mu.Lock()
			c.trackEnded = true
			if len(c.groups) == 0 {
				c.wakeLocked()
			}
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			g.Close(nil)
			return
		}
		if g.Sequence() < c.active {
			// Spec §4.2: groups opened with sequence < A are dropped
			// immediately.
			c.mu.Unlock()
			g.Close(hangerr.ErrGroupCancelled)
			continue
		}

		groupCtx, groupCancel := context.WithCancel(c.ctx)
		lg := &liveGroup{seq: g.Sequence(), cancel: groupCancel}
		c.groups[g.Sequence()] = lg
		c.mu.Unlock()

		c.wg.Add(1)
		go c.readGroup(groupCtx, g, lg)
	}
}

// readGroup runs one task per open group, reading its frames.
func (c *Consumer) readGroup(ctx context.Context, g transport.Group, lg *liveGroup) {
	defer c.wg.Done()

	index := 0
	for {
		raw, err := g.ReadFrame(ctx)
		if err != nil {
			g.Close(nil)
			c.onGroupDone(lg)
			return
		}

		ts, payload, err := wire.DecodeFrame(raw)
		if err != nil {
			c.logger.Warn("dropping malformed frame envelope", "group", lg.seq, "error", err)
			continue
		}

		f := media.Frame{
			Data:      payload,
			Timestamp: ts,
			Keyframe:  index == 0,
			Group:     lg.seq,
		}
		index++

		c.onFrame(f)
	}
}

// onFrame enqueues f, wakes a blocked Decode(), and applies the
// latency policy that bounds how long a stale group can keep its
// reader alive. Decode() always
// emits the queue's earliest (timestamp, group) frame once one is
// buffered; active only gates which groups are still worth waiting
// on, not which buffered frame comes out next.
func (c *Consumer) onFrame(f media.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if f.Group < c.active {
		return // superseded by an active-group advance since this frame was read
	}

	heap.Push(&c.queue, f)
	c.wakeLocked()
	c.applyLatencyLocked()
}

// applyLatencyLocked implements the latency policy: if the
// queue's tail-to-head timestamp span is >= latency and a frame from a
// group newer than A is buffered, advance A to the smallest such
// group, dropping and closing everything older. Caller holds c.mu.
func (c *Consumer) applyLatencyLocked() {
	if len(c.queue) == 0 {
		return
	}
	head := c.queue[0].Timestamp
	tail := c.newestTimestampLocked()
	latency := media.FromDuration(c.latency.Peek())

	if tail.Sub(head) < latency {
		return
	}

	newer, ok := c.smallestNewerGroupLocked()
	if !ok {
		return
	}

	c.advanceActiveLocked(newer)
}

// newestTimestampLocked scans the queue for the maximum timestamp.
// The queue is a heap (min at index 0), so the max is found by linear
// scan; queue sizes are bounded by the latency window in practice.
func (c *Consumer) newestTimestampLocked() media.Timestamp {
	var max media.Timestamp
	for _, f := range c.queue {
		if f.Timestamp > max {
			max = f.Timestamp
		}
	}
	return max
}

// smallestNewerGroupLocked returns the smallest group sequence > A
// present in the queue, if any.
func (c *Consumer) smallestNewerGroupLocked() (uint64, bool) {
	found := false
	var smallest uint64
	for _, f := range c.queue {
		if f.Group > c.active {
			if !found || f.Group < smallest {
				smallest = f.Group
				found = true
			}
		}
	}
	return smallest, found
}

// advanceActiveLocked sets A = newActive, drops queued frames from
// groups older than newActive, and cancels+closes their readers.
// Caller holds c.mu.
func (c *Consumer) advanceActiveLocked(newActive uint64) {
	if newActive <= c.active {
		return
	}
	c.active = newActive

	kept := c.queue[:0]
	for _, f := range c.queue {
		if f.Group >= newActive {
			kept = append(kept, f)
		}
	}
	c.queue = kept
	heap.Init(&c.queue)

	for seq, lg := range c.groups {
		if seq < newActive && !lg.done {
			lg.cancel()
		}
	}

	c.logger.Debug("active group advanced", "active", newActive)
	c.wakeLocked()
}

// onGroupDone handles a group reader reaching EOF or error.
func (c *Consumer) onGroupDone(lg *liveGroup) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lg.done = true
	delete(c.groups, lg.seq)

	if lg.seq == c.active {
		c.active++
	}

	if len(c.queue) > 0 {
		c.wakeLocked()
	} else if c.trackEnded && len(c.groups) == 0 {
		// No more groups will ever arrive and every live reader has
		// finished: wake a blocked Decode() so it can observe
		// quiescence and return (Frame{}, false, nil).
		c.wakeLocked()
	}
}

// wakeLocked signals a pending Decode() waiter, if any. Caller holds
// c.mu.
func (c *Consumer) wakeLocked() {
	if c.waiter != nil {
		close(c.waiter)
		c.waiter = nil
	}
}

// Decode returns the next frame in (timestamp, group) order, or
// (media.Frame{}, false, nil) once the Consumer is closed with no more
// frames pending. Only one Decode() call may be outstanding at a time;
// a concurrent call returns hangerr.ErrMultipleDecoders.
func (c *Consumer) Decode(ctx context.Context) (media.Frame, bool, error) {
	c.mu.Lock()
	if c.decoding {
		c.mu.Unlock()
		return media.Frame{}, false, hangerr.ErrMultipleDecoders
	}
	c.decoding = true
	defer func() {
		c.mu.Lock()
		c.decoding = false
		c.mu.Unlock()
	}()

	for {
		if len(c.queue) > 0 {
			f := heap.Pop(&c.queue).(media.Frame)
			c.mu.Unlock()
			return f, true, nil
		}

		if c.closed {
			c.mu.Unlock()
			return media.Frame{}, false, nil
		}
		if c.trackEnded && len(c.groups) == 0 {
			// Track will never open another group and every group
			// that did open has drained: no more frames are coming.
			c.mu.Unlock()
			return media.Frame{}, false, nil
		}

		waiter := make(chan struct{})
		c.waiter = waiter
		c.mu.Unlock()

		select {
		case <-waiter:
		case <-ctx.Done():
			c.mu.Lock()
			if c.waiter == waiter {
				c.waiter = nil
			}
			c.mu.Unlock()
			return media.Frame{}, false, ctx.Err()
		}

		c.mu.Lock()
	}
}

// Close tears down the Consumer: all outstanding groups are cancelled
// and closed, the fetch goroutine stops, and any pending Decode()
// resolves with (Frame{}, false, nil).
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, lg := range c.groups {
		if !lg.done {
			lg.cancel()
		}
	}
	c.wakeLocked()
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

// frameHeap is a container/heap of media.Frame ordered by (Timestamp,
// Group), the jitter buffer's priority queue.
type frameHeap []media.Frame

func (h frameHeap) Len() int            { return len(h) }
func (h frameHeap) Less(i, j int) bool  { return h[i].Less(h[j]) }
func (h frameHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *frameHeap) Push(x interface{}) { *h = append(*h, x.(media.Frame)) }
func (h *frameHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
