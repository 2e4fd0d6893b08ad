// Package media holds the wire-independent data model shared by every
// hang subsystem: presentation timestamps and the Frame envelope they
// tag.
package media

import "time"

// Timestamp is a nonnegative presentation timestamp in microseconds.
// The varint encoding in package wire caps it at 2^53-1, so Timestamp
// stays well within uint64's range with room to spare.
type Timestamp uint64

// MaxTimestamp is the largest value the wire varint can carry.
const MaxTimestamp Timestamp = 1<<53 - 1

// FromMillis builds a Timestamp from a millisecond count.
func FromMillis(ms int64) Timestamp {
	if ms < 0 {
		return 0
	}
	return Timestamp(ms) * 1000
}

// FromSeconds builds a Timestamp from a fractional second count.
func FromSeconds(s float64) Timestamp {
	if s < 0 {
		return 0
	}
	return Timestamp(s * 1e6)
}

// FromDuration builds a Timestamp from a time.Duration.
func FromDuration(d time.Duration) Timestamp {
	if d < 0 {
		return 0
	}
	return Timestamp(d.Microseconds())
}

// Micros returns the raw microsecond count.
func (t Timestamp) Micros() int64 { return int64(t) }

// Millis returns the timestamp rounded down to whole milliseconds.
func (t Timestamp) Millis() int64 { return int64(t) / 1000 }

// Seconds returns the timestamp as fractional seconds.
func (t Timestamp) Seconds() float64 { return float64(t) / 1e6 }

// Duration returns the timestamp as a time.Duration.
func (t Timestamp) Duration() time.Duration {
	return time.Duration(t) * time.Microsecond
}

// Sub returns t-u saturated at zero (timestamps never go negative).
func (t Timestamp) Sub(u Timestamp) Timestamp {
	if u > t {
		return 0
	}
	return t - u
}

// Add returns t+d as a Timestamp.
func (t Timestamp) Add(d time.Duration) Timestamp {
	return t + FromDuration(d)
}
