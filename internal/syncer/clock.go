package syncer

import "time"

// nextTimestamp stamps a local write. Wall-clock time is used when it moves
// forward; when it does not (clock skew, two writes within the same
// millisecond), the previous timestamp plus one keeps per-record timestamps
// strictly monotonic, so a device's own newer write can never lose to its
// older one.
func nextTimestamp(prev int64, now time.Time) int64 {
	ts := now.UnixMilli()
	if ts <= prev {
		return prev + 1
	}
	return ts
}
