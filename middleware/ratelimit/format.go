// Small helpers for consistent numeric formatting in headers, without
// pulling fmt into the hot path.

package ratelimit

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }

// ceilSeconds rounds a wait up to whole seconds for Retry-After, with a
// floor of 1 so a denied client never retries immediately.
func ceilSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}
