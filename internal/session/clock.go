package session

import "time"

// nowMillis is the reactor's monotonic-enough clock source: timer
// expiries and process_timers' "now" argument are both stamped in
// milliseconds since the Unix epoch.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
