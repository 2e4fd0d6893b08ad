package memory

import (
	"context"
	"sync"

	"github.com/okdaichi/hang/transport"
)

// AnnounceStream is a writable, in-process transport.AnnounceStream.
type AnnounceStream struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []transport.Announcement
	closed bool
}

// NewAnnounceStream creates an empty, open announce stream.
func NewAnnounceStream() *AnnounceStream {
	s := &AnnounceStream{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Push appends an announcement a test drives the stream with.
func (s *AnnounceStream) Push(a transport.Announcement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.items = append(s.items, a)
	s.cond.Broadcast()
}

func (s *AnnounceStream) Next(ctx context.Context) (transport.Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.items) == 0 && !s.closed {
		waitCh := make(chan struct{})
		go func() {
			s.mu.Lock()
			s.cond.Wait()
			s.mu.Unlock()
			close(waitCh)
		}()
		s.mu.Unlock()
		select {
		case <-waitCh:
			s.mu.Lock()
		case <-ctx.Done():
			s.mu.Lock()
			return transport.Announcement{}, ctx.Err()
		}
	}
	if len(s.items) == 0 {
		return transport.Announcement{}, context.Canceled
	}
	a := s.items[0]
	s.items = s.items[1:]
	return a, nil
}

func (s *AnnounceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
	return nil
}

// Connection is an in-process transport.Connection backed by a set of
// named Broadcasts and a single shared AnnounceStream, for tests that
// exercise broadcast orchestration without a real QUIC endpoint.
type Connection struct {
	mu         sync.Mutex
	broadcasts map[string]*Broadcast
	announce   *AnnounceStream
}

// NewConnection creates an in-process connection; announce, if
// non-nil, is the stream returned by every Announced call (tests drive
// it directly with Push).
func NewConnection(announce *AnnounceStream) *Connection {
	if announce == nil {
		announce = NewAnnounceStream()
	}
	return &Connection{broadcasts: make(map[string]*Broadcast), announce: announce}
}

// Broadcast returns (creating if absent) the named underlying
// *Broadcast so a test can push catalog/track frames onto it.
func (c *Connection) Broadcast(name string) *Broadcast {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.broadcasts[name]
	if !ok {
		b = NewBroadcast()
		c.broadcasts[name] = b
	}
	return b
}

func (c *Connection) Announced(ctx context.Context, prefix string) (transport.AnnounceStream, error) {
	return c.announce, nil
}

func (c *Connection) Consume(ctx context.Context, name string) (transport.Broadcast, error) {
	return c.Broadcast(name), nil
}

func (c *Connection) Close() error { return nil }

var _ transport.Connection = (*Connection)(nil)
