// Package timestamp stamps captured frames with wall-clock seconds.
package timestamp

import (
	"strconv"
	"time"
)

// Timestamp is wall-clock time in seconds since the Unix epoch with
// millisecond resolution, the unit tracking engines expect.
type Timestamp float64

// Millisecond is the timestamp resolution
const Millisecond Timestamp = 0.001

// FromTime truncates t to whole milliseconds and converts it to seconds.
func FromTime(t time.Time) Timestamp {
	return Timestamp(float64(t.UnixMilli()) / 1000.0)
}

// Seconds returns the raw float value
func (ts Timestamp) Seconds() float64 { return float64(ts) }

// Time converts back to a time.Time (millisecond precision)
func (ts Timestamp) Time() time.Time {
	return time.UnixMilli(ts.Millis())
}

// Millis returns the timestamp in whole milliseconds
func (ts Timestamp) Millis() int64 {
	// Round instead of truncate: 1.001*1000 is 1000.9999999999999
	return int64(float64(ts)*1000.0 + 0.5)
}

func (ts Timestamp) String() string {
	return strconv.FormatFloat(float64(ts), 'f', 3, 64)
}

// Clock is the source of the current instant
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Generator produces frame timestamps. It keeps no state: each call is a
// function of the current instant only. Call it right after a frame was
// retrieved so retrieval latency is not attributed to the previous frame.
type Generator struct {
	clock Clock
}

// NewGenerator returns a generator reading clock, or the system clock if nil
func NewGenerator(clock Clock) *Generator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Generator{clock: clock}
}

// Now returns the timestamp of the current instant
func (g *Generator) Now() Timestamp {
	return FromTime(g.clock.Now())
}
