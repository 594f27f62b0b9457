package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	RunState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slam_capture_run_state",
		Help: "Current run state (0 initializing, 1 running, 2 draining, 3 shut down)",
	})
	LastTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slam_capture_last_timestamp_seconds",
		Help: "Timestamp of the last frame handed to the tracking engine",
	})
)

// Counters
var (
	FramesReadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slam_capture_frames_read_total",
		Help: "Non-empty frames pulled from the capture source",
	})
	FramesTrackedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slam_capture_frames_tracked_total",
		Help: "Frames for which the engine returned a pose",
	})
	TrackingFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slam_capture_tracking_failures_total",
		Help: "Frames without a pose by reason",
	}, []string{"reason"})
	TimestampAdjustmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slam_capture_timestamp_adjustments_total",
		Help: "Timestamps raised because the clock did not advance",
	})
	SinkErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slam_capture_sink_errors_total",
		Help: "Pose sink failures",
	})
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slam_capture_runs_total",
		Help: "Completed runs by exit reason",
	}, []string{"exit"})
)

// Histograms
var (
	TrackLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slam_capture_track_duration_ms",
		Help:    "Engine track() call duration in milliseconds",
		Buckets: []float64{5, 10, 20, 33, 50, 100, 200, 500, 1000},
	})
	ReadLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slam_capture_read_duration_ms",
		Help:    "Frame retrieval duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 33, 50, 100, 250},
	})
)
