// Package timestamp converts between wall-clock time and the Messages store's
// native timestamps: nanoseconds since 2001-01-01T00:00:00Z.
package timestamp

import "time"

// AppleEpochUnix is 2001-01-01T00:00:00Z expressed as Unix seconds.
const AppleEpochUnix int64 = 978307200

// secondsCutoff separates legacy second-resolution values from nanosecond values.
const secondsCutoff int64 = 100_000_000_000

const day = 24 * time.Hour

// Threshold returns the native timestamp daysBack days before now.
func Threshold(daysBack int) int64 {
	return ThresholdAt(time.Now(), daysBack)
}

// ThresholdAt is Threshold with an explicit "now". Negative values clamp to zero.
func ThresholdAt(now time.Time, daysBack int) int64 {
	if daysBack < 0 {
		daysBack = 0
	}
	return FromTime(now) - int64(daysBack)*int64(day)
}

// FromTime converts a wall-clock time to a native timestamp.
func FromTime(t time.Time) int64 {
	return (t.Unix()-AppleEpochUnix)*int64(time.Second) + int64(t.Nanosecond())
}

// ToTime converts a native timestamp to wall-clock time. Stores written before
// macOS 10.13 use seconds rather than nanoseconds; those are detected by magnitude.
func ToTime(native int64) time.Time {
	if native > -secondsCutoff && native < secondsCutoff {
		return time.Unix(native+AppleEpochUnix, 0)
	}
	sec := native / int64(time.Second)
	nsec := native % int64(time.Second)
	return time.Unix(sec+AppleEpochUnix, nsec)
}

// ToReadable renders a native timestamp in local time.
func ToReadable(native int64) string {
	return ToTime(native).Local().Format("2006-01-02 15:04:05")
}

// Compact renders month/day hour:minute for the minimal output tier.
func Compact(native int64) string {
	return ToTime(native).Local().Format("1/2 15:04")
}

// Day renders the local calendar day.
func Day(native int64) string {
	return ToTime(native).Local().Format("2006-01-02")
}
