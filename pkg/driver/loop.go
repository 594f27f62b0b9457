package driver

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/video-system/go-slam-capture/internal/metrics"
	"github.com/video-system/go-slam-capture/pkg/engine"
	"github.com/video-system/go-slam-capture/pkg/sink"
	"github.com/video-system/go-slam-capture/pkg/source"
	"github.com/video-system/go-slam-capture/pkg/timestamp"
)

// ExitReason says why the acquisition loop stopped
type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitExhausted
	ExitInterrupted
	ExitFrameLimit
	ExitFailed
)

func (r ExitReason) String() string {
	switch r {
	case ExitExhausted:
		return "exhausted"
	case ExitInterrupted:
		return "interrupted"
	case ExitFrameLimit:
		return "frame_limit"
	case ExitFailed:
		return "failed"
	default:
		return "none"
	}
}

// Loop pulls frames from one source and feeds them to one engine, strictly
// one at a time and in retrieval order.
type Loop struct {
	source    source.Source
	engine    engine.Engine
	stamper   *timestamp.Generator
	sink      sink.Sink
	interrupt *Interrupt
	maxFrames int64
	stats     *Stats
	logger    *zap.Logger

	last    timestamp.Timestamp
	stamped bool
}

// Run iterates until the source is exhausted, a stop is requested, the frame
// limit is reached, or the engine terminates. Only the last case returns an
// error. Stop requests are honored between iterations.
func (l *Loop) Run(ctx context.Context) (ExitReason, error) {
	for {
		if reason, stop := l.shouldStop(ctx); stop {
			return reason, nil
		}

		start := time.Now()
		frame, err := l.source.ReadFrame(ctx)
		if err != nil || frame.Empty() {
			if err != nil {
				l.logger.Info("capture ended", zap.Error(err))
			} else {
				l.logger.Info("capture ended: empty frame")
			}
			return ExitExhausted, nil
		}
		// Stamp right after retrieval so read latency does not leak into it
		ts := l.admit(l.stamper.Now())
		metrics.ReadLatency.Observe(float64(time.Since(start).Milliseconds()))
		l.stats.framesRead.Add(1)
		metrics.FramesReadTotal.Inc()

		if err := l.step(ctx, frame, ts); err != nil {
			return ExitFailed, err
		}
	}
}

func (l *Loop) shouldStop(ctx context.Context) (ExitReason, bool) {
	if l.interrupt.Requested() {
		l.logger.Info("stop requested", zap.String("reason", l.interrupt.Reason()))
		return ExitInterrupted, true
	}
	if ctx.Err() != nil {
		l.logger.Info("context done", zap.Error(ctx.Err()))
		return ExitInterrupted, true
	}
	if l.maxFrames > 0 && l.stats.framesRead.Load() >= l.maxFrames {
		l.logger.Info("frame limit reached", zap.Int64("max_frames", l.maxFrames))
		return ExitFrameLimit, true
	}
	return ExitNone, false
}

// admit keeps timestamps strictly increasing within a run. A clock that
// stood still or stepped back yields previous + 1ms.
func (l *Loop) admit(ts timestamp.Timestamp) timestamp.Timestamp {
	if l.stamped && ts <= l.last {
		adjusted := timestamp.Timestamp(float64(l.last.Millis()+1) / 1000.0)
		l.logger.Warn("timestamp did not advance",
			zap.Stringer("clock", ts),
			zap.Stringer("previous", l.last),
			zap.Stringer("adjusted", adjusted))
		l.stats.adjustments.Add(1)
		metrics.TimestampAdjustmentsTotal.Inc()
		ts = adjusted
	}
	l.last = ts
	l.stamped = true
	l.stats.setLastTimestamp(ts.Seconds())
	metrics.LastTimestamp.Set(ts.Seconds())
	return ts
}

// step tracks one frame and hands the result to the sink
func (l *Loop) step(ctx context.Context, frame *source.Frame, ts timestamp.Timestamp) error {
	start := time.Now()
	pose, err := l.engine.Track(ctx, frame, ts)
	metrics.TrackLatency.Observe(float64(time.Since(start).Milliseconds()))

	switch {
	case errors.Is(err, engine.ErrTerminated):
		l.logger.Error("engine terminated", zap.Int64("frame", frame.Sequence), zap.Error(err))
		return err
	case err != nil:
		pose = engine.EmptyPose
		l.trackingFailed("error", frame, ts)
		l.logger.Warn("track failed", zap.Int64("frame", frame.Sequence), zap.Error(err))
	case pose.Empty():
		l.trackingFailed("lost", frame, ts)
	default:
		l.stats.framesTracked.Add(1)
		l.stats.setLastCenter(pose.CameraCenter())
		metrics.FramesTrackedTotal.Inc()
	}

	if err := l.sink.Observe(sink.Observation{Frame: frame, Timestamp: ts, Pose: pose}); err != nil {
		l.stats.sinkErrors.Add(1)
		metrics.SinkErrorsTotal.Inc()
		l.logger.Warn("sink failed", zap.Int64("frame", frame.Sequence), zap.Error(err))
	}
	return nil
}

func (l *Loop) trackingFailed(reason string, frame *source.Frame, ts timestamp.Timestamp) {
	l.stats.trackingFailures.Add(1)
	metrics.TrackingFailuresTotal.WithLabelValues(reason).Inc()
	l.logger.Debug("no pose",
		zap.String("reason", reason),
		zap.Int64("frame", frame.Sequence),
		zap.Stringer("timestamp", ts))
}
