// Package moq adapts github.com/okdaichi/gomoqt's client session onto
// package transport's interfaces, the way mpisat-qumo/internal/relay
// wraps the same library for relaying instead of consuming (see
// RelayHandler.subscribe and RemoteFetcher.getOrDialSession, which
// this package's Dial and Connection.Consume mirror).
package moq

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/okdaichi/gomoqt/moqt"
	"github.com/okdaichi/gomoqt/quic"
	"github.com/okdaichi/hang/hangerr"
	"github.com/okdaichi/hang/transport"
)

// Connection wraps a dialed *moqt.Session as a transport.Connection.
type Connection struct {
	session *moqt.Session
	logger  *slog.Logger
}

// Dial opens a MoQ-lite session to address, the way
// RemoteFetcher.getOrDialSession dials a next-hop relay.
func Dial(ctx context.Context, address string, tlsConfig *tls.Config, quicConfig *quic.Config) (*Connection, error) {
	client := &moqt.Client{
		TLSConfig:  tlsConfig,
		QUICConfig: quicConfig,
	}
	sess, err := client.Dial(ctx, address, moqt.NewTrackMux())
	if err != nil {
		return nil, fmt.Errorf("moq: dial %s: %w", address, err)
	}
	return &Connection{session: sess, logger: slog.Default()}, nil
}

func (c *Connection) Announced(ctx context.Context, prefix string) (transport.AnnounceStream, error) {
	stream, err := c.session.Announced(ctx, moqt.BroadcastPath(prefix))
	if err != nil {
		return nil, fmt.Errorf("moq: announced(%s): %w", prefix, err)
	}
	return &announceStream{stream: stream}, nil
}

func (c *Connection) Consume(ctx context.Context, name string) (transport.Broadcast, error) {
	return &broadcast{session: c.session, path: moqt.BroadcastPath(name), logger: c.logger}, nil
}

func (c *Connection) Close() error {
	c.session.CloseWithError(moqt.NoError, moqt.SessionErrorText(moqt.NoError))
	return nil
}

type announceStream struct {
	stream *moqt.AnnouncementReader
}

func (a *announceStream) Next(ctx context.Context) (transport.Announcement, error) {
	ann, err := a.stream.Receive(ctx)
	if err != nil {
		return transport.Announcement{}, fmt.Errorf("moq: announce stream: %w: %v", hangerr.ErrTransportClosed, err)
	}
	return transport.Announcement{
		Suffix: string(ann.BroadcastPath()),
		Active: ann.IsActive(),
	}, nil
}

func (a *announceStream) Close() error {
	a.stream.Close()
	return nil
}

type broadcast struct {
	session *moqt.Session
	path    moqt.BroadcastPath
	logger  *slog.Logger
}

func (b *broadcast) Subscribe(ctx context.Context, trackName string, priority uint8) (transport.Track, error) {
	reader, err := b.session.Subscribe(b.path, moqt.TrackName(trackName), &moqt.TrackConfig{
		TrackPriority: moqt.TrackPriority(priority),
	})
	if err != nil {
		return nil, fmt.Errorf("moq: subscribe %s/%s: %w", b.path, trackName, err)
	}
	return &track{reader: reader, name: trackName, priority: priority, logger: b.logger}, nil
}

type track struct {
	reader   *moqt.TrackReader
	name     string
	priority uint8
	logger   *slog.Logger
}

func (t *track) Name() string    { return t.name }
func (t *track) Priority() uint8 { return t.priority }

func (t *track) NextGroup(ctx context.Context) (transport.Group, error) {
	reader, err := t.reader.AcceptGroup(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", hangerr.ErrTransportClosed, err)
	}
	return &group{reader: reader}, nil
}

func (t *track) Close() error {
	t.reader.Close()
	return nil
}

type group struct {
	reader *moqt.GroupReader
}

func (g *group) Sequence() uint64 { return uint64(g.reader.GroupSequence()) }

func (g *group) ReadFrame(ctx context.Context) ([]byte, error) {
	frame, err := g.reader.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", hangerr.ErrTransportClosed, err)
	}
	return frame, nil
}

func (g *group) Close(err error) error {
	if err != nil {
		g.reader.CancelRead(moqt.InternalGroupErrorCode)
		return nil
	}
	g.reader.Close()
	return nil
}

var (
	_ transport.Connection     = (*Connection)(nil)
	_ transport.AnnounceStream = (*announceStream)(nil)
	_ transport.Broadcast      = (*broadcast)(nil)
	_ transport.Track          = (*track)(nil)
	_ transport.Group          = (*group)(nil)
)
