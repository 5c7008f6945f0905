// Package mono provides a monotonic nanosecond clock used for measuring
// elapsed durations (checkpoint age, poll back-off) without the hazards of
// wall-clock adjustment. The storage-node logger this project started
// from pulled runtime.nanotime via go:linkname; this module instead keeps
// a monotonic reading the supported way, through time.Now(), which the Go
// runtime already stamps with a monotonic component.
package mono

import "time"

// NanoTime returns a monotonic nanosecond reading suitable for computing
// elapsed durations via subtraction. It carries no relation to wall-clock
// time and must never be serialized.
func NanoTime() int64 { return int64(time.Since(base)) }

// base anchors NanoTime; time.Since measures from it on the monotonic clock.
var base = time.Now()

// Since returns the elapsed duration since a prior NanoTime() reading.
func Since(start int64) time.Duration { return time.Duration(NanoTime() - start) }
