package transport

import (
	"context"

	"github.com/okdaichi/hang/wire"
)

// ScalarReader sequentially decodes frame envelopes from a Track as a
// flat stream, without jitter-buffering or reordering: used for
// sub-tracks whose every frame is immediately authoritative (captions,
// voice-activity, chat scalars). It walks groups and frames in
// arrival order and never looks back.
type ScalarReader struct {
	track Track
	group Group
}

// NewScalarReader wraps track for sequential frame-by-frame reads.
func NewScalarReader(track Track) *ScalarReader {
	return &ScalarReader{track: track}
}

// NextFrame returns the next frame's payload (with the varint
// timestamp prefix stripped) in strict arrival order.
func (r *ScalarReader) NextFrame(ctx context.Context) ([]byte, error) {
	for {
		if r.group == nil {
			g, err := r.track.NextGroup(ctx)
			if err != nil {
				return nil, err
			}
			r.group = g
		}

		raw, err := r.group.ReadFrame(ctx)
		if err != nil {
			r.group.Close(nil)
			r.group = nil
			continue
		}

		_, payload, err := wire.DecodeFrame(raw)
		if err != nil {
			continue
		}
		return payload, nil
	}
}

// ReadString decodes the next frame as a UTF-8 string. Empty string is
// a valid value, distinct from "no caption yet".
func (r *ScalarReader) ReadString(ctx context.Context) (string, error) {
	payload, err := r.NextFrame(ctx)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// ReadBool decodes the next frame as a single boolean byte (0x00/0x01).
func (r *ScalarReader) ReadBool(ctx context.Context) (bool, error) {
	payload, err := r.NextFrame(ctx)
	if err != nil {
		return false, err
	}
	return len(payload) > 0 && payload[0] != 0x00, nil
}

// Close releases the currently open group, if any.
func (r *ScalarReader) Close() error {
	if r.group != nil {
		return r.group.Close(nil)
	}
	return nil
}
