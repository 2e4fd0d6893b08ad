package video

// PresentationBuffer holds at most two decoded frames awaiting
// display: current, the frame due for display, and next, held back
// for a single reordering step when the platform decoder can emit one
// B-frame out of order.
type PresentationBuffer struct {
	current *DecodedFrame
	next    *DecodedFrame
}

// Current returns the frame due for display, if any.
func (p *PresentationBuffer) Current() *DecodedFrame { return p.current }

// Push inserts f according to the jitter-aware policy and returns the
// frame that should now be displayed (nil if nothing changed). When
// jitter is zero, f displays immediately, discarding any frame already
// held. Otherwise f merges into the two-slot buffer sorted by
// timestamp: a frame older than current is dropped; once both slots
// are occupied, the next arrival promotes current to display and the
// two remaining frames resettle into {current, next} by timestamp.
func (p *PresentationBuffer) Push(f DecodedFrame, jitterZero bool) *DecodedFrame {
	if jitterZero {
		p.current = &f
		p.next = nil
		return p.current
	}

	if p.current == nil {
		p.current = &f
		return p.current
	}
	if f.Timestamp < p.current.Timestamp {
		return nil
	}
	if p.next == nil {
		p.next = &f
		return nil
	}

	promoted := p.current
	if f.Timestamp <= p.next.Timestamp {
		p.current, p.next = &f, p.next
	} else {
		p.current, p.next = p.next, &f
	}
	return promoted
}
