package wire

import "time"

// Epoch is the origin for relative-timestamp encoding: seconds since this
// instant, not since the UNIX epoch, shave a byte off most in-range
// timestamps once encoded as a varint (spec.md §4.B).
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// EncodeRelativeTimestamp returns seconds elapsed between Epoch and t. t
// before Epoch clamps to 0.
func EncodeRelativeTimestamp(t time.Time) uint32 {
	d := t.Sub(Epoch)
	if d < 0 {
		return 0
	}
	secs := d / time.Second
	if secs > 1<<32-1 {
		return 1<<32 - 1
	}
	return uint32(secs)
}

// DecodeRelativeTimestamp reconstructs a time.Time from a relative-timestamp
// value produced by EncodeRelativeTimestamp.
func DecodeRelativeTimestamp(v uint32) time.Time {
	return Epoch.Add(time.Duration(v) * time.Second)
}
