package utils

import "time"

// Now returns the current UTC time truncated to microseconds, matching
// the precision persisted by the store.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// TimePtr returns a pointer to the given time.
func TimePtr(t time.Time) *time.Time {
	return &t
}
