// Package hangerr collects the error kinds observed at the hang client's
// core boundary. Subsystems return these directly or wrap them
// with fmt.Errorf("%w", ...); callers compare with errors.Is/errors.As.
package hangerr

import "errors"

var (
	// ErrTransportClosed means the underlying Broadcast or Track ended.
	// Propagated as stream termination, not a fatal condition.
	ErrTransportClosed = errors.New("hang: transport closed")

	// ErrGroupCancelled is internal: a group reader was cancelled by the
	// jitter buffer (superseded by a newer active group, or by Close).
	// It never crosses a package boundary as a returned error; it is
	// swallowed at the point the group is cancelled.
	ErrGroupCancelled = errors.New("hang: group cancelled")

	// ErrDecoder means the platform decoder reported an error. The audio
	// and video drivers log and count a decoder error, drop that frame
	// and keep decoding; they do not tear the pipeline down.
	ErrDecoder = errors.New("hang: decoder error")

	// ErrCatalogParse means the catalog.json frame was not valid JSON
	// for the Root schema. The catalog is cleared and status regresses
	// to loading.
	ErrCatalogParse = errors.New("hang: catalog parse error")

	// ErrMultipleDecoders is returned by Consumer.Decode when a second
	// call races an outstanding one. Misuse, not a transport condition.
	ErrMultipleDecoders = errors.New("hang: multiple concurrent decode() calls")

	// ErrOverflow is returned by wire.EncodeFrame when the timestamp
	// exceeds 2^53-1, hang's timestamp cap.
	ErrOverflow = errors.New("hang: timestamp exceeds 2^53-1")

	// ErrBufferMismatch is returned by a ring buffer Write/Read call
	// made with the wrong channel count.
	ErrBufferMismatch = errors.New("hang: channel count mismatch")

	// ErrMalformedEnvelope is returned when a frame's varint timestamp
	// prefix cannot be decoded (truncated or empty payload).
	ErrMalformedEnvelope = errors.New("hang: malformed frame envelope")
)
