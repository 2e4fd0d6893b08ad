// Package memory implements transport's interfaces in-process with
// channels, for tests that exercise jitter, catalog, audio, video and
// broadcast logic without a real QUIC endpoint — grounded in the
// teacher's own in-process fake transport used by
// mpisat-qumo/internal/relay's testing_helpers_test.go.
package memory

import (
	"context"
	"sync"

	"github.com/okdaichi/hang/hangerr"
	"github.com/okdaichi/hang/transport"
)

// Group is a writable, in-process transport.Group. Frames written via
// PushFrame become visible to ReadFrame in order; Close marks EOF.
type Group struct {
	seq uint64

	mu     sync.Mutex
	frames [][]byte
	cond   *sync.Cond
	closed bool
	err    error
}

// NewGroup creates an open group at the given sequence number.
func NewGroup(seq uint64) *Group {
	g := &Group{seq: seq}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *Group) Sequence() uint64 { return g.seq }

// PushFrame appends a raw frame envelope (already varint-prefixed).
// It is a no-op after Close.
func (g *Group) PushFrame(raw []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.frames = append(g.frames, raw)
	g.cond.Broadcast()
}

func (g *Group) ReadFrame(ctx context.Context) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for len(g.frames) == 0 && !g.closed {
		waitCh := make(chan struct{})
		go func() {
			g.mu.Lock()
			g.cond.Wait()
			g.mu.Unlock()
			close(waitCh)
		}()
		g.mu.Unlock()
		select {
		case <-waitCh:
			g.mu.Lock()
		case <-ctx.Done():
			g.mu.Lock()
			return nil, ctx.Err()
		}
	}

	if len(g.frames) == 0 {
		if g.err != nil {
			return nil, g.err
		}
		return nil, hangerr.ErrTransportClosed
	}

	f := g.frames[0]
	g.frames = g.frames[1:]
	return f, nil
}

// Close marks the group closed; any pending or future ReadFrame
// returns, once drained, err if it is non-nil (e.g. the consumer
// cancelled the group) and hangerr.ErrTransportClosed otherwise.
func (g *Group) Close(err error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	g.err = err
	g.cond.Broadcast()
	return nil
}

// Track is a writable, in-process transport.Track. OpenGroup appends a
// new Group that NextGroup callers will observe in order.
type Track struct {
	name     string
	priority uint8

	mu     sync.Mutex
	groups []*Group
	cond   *sync.Cond
	closed bool
}

// NewTrack creates an open, empty track.
func NewTrack(name string, priority uint8) *Track {
	t := &Track{name: name, priority: priority}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *Track) Name() string    { return t.name }
func (t *Track) Priority() uint8 { return t.priority }

// OpenGroup creates and appends a new Group at seq, returning it for
// the caller (typically a test) to push frames onto.
func (t *Track) OpenGroup(seq uint64) *Group {
	g := NewGroup(seq)
	t.mu.Lock()
	t.groups = append(t.groups, g)
	t.cond.Broadcast()
	t.mu.Unlock()
	return g
}

var _ transport.Track = (*trackCursor)(nil)

// trackCursor adapts *Track into transport.Track with per-subscriber
// NextGroup position, so multiple consumers can read the same
// in-memory track independently.
type trackCursor struct {
	t   *Track
	pos int
}

// Subscribe-equivalent constructor for tests that want a fresh
// transport.Track view over an existing in-memory Track.
func NewTrackCursor(t *Track) transport.Track {
	return &trackCursor{t: t}
}

func (c *trackCursor) Name() string    { return c.t.name }
func (c *trackCursor) Priority() uint8 { return c.t.priority }

func (c *trackCursor) NextGroup(ctx context.Context) (transport.Group, error) {
	c.t.mu.Lock()
	for c.pos >= len(c.t.groups) && !c.t.closed {
		waitCh := make(chan struct{})
		go func() {
			c.t.mu.Lock()
			c.t.cond.Wait()
			c.t.mu.Unlock()
			close(waitCh)
		}()
		c.t.mu.Unlock()
		select {
		case <-waitCh:
			c.t.mu.Lock()
		case <-ctx.Done():
			c.t.mu.Lock()
			defer c.t.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	defer c.t.mu.Unlock()

	if c.pos >= len(c.t.groups) {
		return nil, hangerr.ErrTransportClosed
	}
	g := c.t.groups[c.pos]
	c.pos++
	return g, nil
}

func (c *trackCursor) Close() error { return nil }

// CloseTrack marks t closed: pending and future NextGroup calls
// return hangerr.ErrTransportClosed once all buffered groups are
// drained.
func (t *Track) CloseTrack() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.cond.Broadcast()
}

// Broadcast is an in-process transport.Broadcast backed by a set of
// named Tracks, each independently subscribable multiple times.
type Broadcast struct {
	mu     sync.Mutex
	tracks map[string]*Track
}

// NewBroadcast creates an empty in-process broadcast.
func NewBroadcast() *Broadcast {
	return &Broadcast{tracks: make(map[string]*Track)}
}

// Track returns (creating if absent) the named underlying *Track so a
// test can push groups/frames onto it directly.
func (b *Broadcast) Track(name string) *Track {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tracks[name]
	if !ok {
		t = NewTrack(name, 0)
		b.tracks[name] = t
	}
	return t
}

func (b *Broadcast) Subscribe(ctx context.Context, trackName string, priority uint8) (transport.Track, error) {
	t := b.Track(trackName)
	t.priority = priority
	return NewTrackCursor(t), nil
}

var _ transport.Broadcast = (*Broadcast)(nil)
