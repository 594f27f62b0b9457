package driver

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/golang/geo/r3"
)

// Stats are the loop counters. The loop is the only writer; the status API
// reads them from another goroutine.
type Stats struct {
	framesRead       atomic.Int64
	framesTracked    atomic.Int64
	trackingFailures atomic.Int64
	adjustments      atomic.Int64
	sinkErrors       atomic.Int64
	lastTimestamp    atomic.Uint64 // float64 bits

	mu         sync.RWMutex
	lastCenter *r3.Vector
}

func (s *Stats) setLastTimestamp(v float64) {
	s.lastTimestamp.Store(math.Float64bits(v))
}

func (s *Stats) setLastCenter(v r3.Vector) {
	s.mu.Lock()
	s.lastCenter = &v
	s.mu.Unlock()
}

// Counters is a point-in-time copy of Stats
type Counters struct {
	FramesRead       int64       `json:"frames_read"`
	FramesTracked    int64       `json:"frames_tracked"`
	TrackingFailures int64       `json:"tracking_failures"`
	Adjustments      int64       `json:"timestamp_adjustments"`
	SinkErrors       int64       `json:"sink_errors"`
	LastTimestamp    float64     `json:"last_timestamp"`
	LastPosition     *[3]float64 `json:"last_position,omitempty"`
}

// Snapshot copies the current counters
func (s *Stats) Snapshot() Counters {
	c := Counters{
		FramesRead:       s.framesRead.Load(),
		FramesTracked:    s.framesTracked.Load(),
		TrackingFailures: s.trackingFailures.Load(),
		Adjustments:      s.adjustments.Load(),
		SinkErrors:       s.sinkErrors.Load(),
		LastTimestamp:    math.Float64frombits(s.lastTimestamp.Load()),
	}
	s.mu.RLock()
	if s.lastCenter != nil {
		c.LastPosition = &[3]float64{s.lastCenter.X, s.lastCenter.Y, s.lastCenter.Z}
	}
	s.mu.RUnlock()
	return c
}
