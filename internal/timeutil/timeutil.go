// Package timeutil converts between the Windows/AMPS file-time epoch used
// by every on-disk timestamp field (microseconds since 1601-01-01 UTC) and
// Go's time.Time / ISO-8601 text.
package timeutil

import "time"

// epochOffsetSeconds is the number of seconds between 1601-01-01 UTC and
// the Unix epoch (1970-01-01 UTC).
const epochOffsetSeconds = 210866803200

// FromAMPS converts an AMPS-epoch microsecond count to a UTC time.Time.
// A zero input (the sentinel for "no expiration"/"not set") maps to the
// zero time.Time; callers that need to distinguish "unset" should check
// the raw uint64 before calling FromAMPS.
func FromAMPS(micros uint64) time.Time {
	if micros == 0 {
		return time.Time{}
	}
	unixMicros := int64(micros) - epochOffsetSeconds*1_000_000
	return time.UnixMicro(unixMicros).UTC()
}

// ToAMPS converts t to an AMPS-epoch microsecond count.
func ToAMPS(t time.Time) uint64 {
	unixMicros := t.UnixMicro()
	return uint64(unixMicros + epochOffsetSeconds*1_000_000)
}

// ISO8601 renders micros as an ISO-8601 timestamp. When local is true the
// timestamp is rendered in the system's local time zone without a
// trailing 'Z'; otherwise it is rendered in UTC with a trailing 'Z'.
func ISO8601(micros uint64, local bool) string {
	t := FromAMPS(micros)
	if t.IsZero() {
		return ""
	}
	if local {
		return t.Local().Format("2006-01-02T15:04:05.000000")
	}
	return t.Format("2006-01-02T15:04:05.000000") + "Z"
}
