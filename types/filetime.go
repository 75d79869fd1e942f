package types

import "time"

// fileTimeEpochOffset is the number of 100ns ticks between 1601-01-01 and
// the Unix epoch.
const fileTimeEpochOffset uint64 = 116444736000000000

// FileTime is a count of 100ns ticks since 1601-01-01 UTC.
type FileTime uint64

// FileTimeFromTime converts t to a FileTime. The zero time maps to 0.
func FileTimeFromTime(t time.Time) FileTime {
	if t.IsZero() {
		return 0
	}
	return FileTime(int64(fileTimeEpochOffset) + t.UnixNano()/100)
}

// Time converts the FileTime to UTC. Zero and pre-epoch values map to the
// zero time.
func (ft FileTime) Time() time.Time {
	if uint64(ft) <= fileTimeEpochOffset {
		return time.Time{}
	}
	ticks := uint64(ft) - fileTimeEpochOffset
	return time.Unix(0, int64(ticks)*100).UTC()
}

// EpochMillis returns milliseconds since the Unix epoch, or 0 for values at
// or before it.
func (ft FileTime) EpochMillis() int64 {
	if uint64(ft) <= fileTimeEpochOffset {
		return 0
	}
	return int64((uint64(ft) - fileTimeEpochOffset) / 10000)
}

// EpochMillis returns milliseconds since the Unix epoch for t, or 0 for the
// zero time.
func EpochMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
