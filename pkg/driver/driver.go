// Package driver runs one tracking session: it opens a capture source,
// starts a tracking engine, feeds frames to it until told to stop, and
// always releases both on the way out.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/video-system/go-slam-capture/internal/metrics"
	"github.com/video-system/go-slam-capture/pkg/engine"
	"github.com/video-system/go-slam-capture/pkg/sink"
	"github.com/video-system/go-slam-capture/pkg/source"
	"github.com/video-system/go-slam-capture/pkg/timestamp"
)

// Resolver opens a capture source from a user specifier
type Resolver interface {
	Resolve(ctx context.Context, raw string) (source.Source, error)
}

// Driver owns the source and engine of a single run
type Driver struct {
	cfg       *Config
	runID     string
	resolver  Resolver
	newEngine engine.Factory
	sink      sink.Sink
	stamper   *timestamp.Generator
	interrupt *Interrupt
	logger    *zap.Logger
	stats     Stats

	state atomic.Int32

	mu         sync.RWMutex
	sourceName string
	startedAt  time.Time
	exit       ExitReason
	err        error
}

// Option customizes a Driver
type Option func(*Driver)

// WithSink sets where observations go. Default discards them.
func WithSink(s sink.Sink) Option {
	return func(d *Driver) { d.sink = s }
}

// WithClock sets the clock frames are stamped with
func WithClock(c timestamp.Clock) Option {
	return func(d *Driver) { d.stamper = timestamp.NewGenerator(c) }
}

// WithEngineFactory overrides how the engine is built. Default looks up
// cfg.Engine.Kind in the engine registry.
func WithEngineFactory(f engine.Factory) Option {
	return func(d *Driver) { d.newEngine = f }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// New creates a driver in the Initializing state
func New(cfg *Config, resolver Resolver, opts ...Option) *Driver {
	d := &Driver{
		cfg:       cfg,
		runID:     uuid.NewString(),
		resolver:  resolver,
		sink:      sink.Nop{},
		stamper:   timestamp.NewGenerator(nil),
		interrupt: NewInterrupt(),
		logger:    zap.NewNop(),
	}
	d.newEngine = func(ctx context.Context, ec engine.Config) (engine.Engine, error) {
		return engine.New(ctx, cfg.Engine.Kind, ec)
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("run_id", d.runID))
	metrics.RunState.Set(float64(StateInitializing))
	return d
}

// RunID identifies this run in logs and status
func (d *Driver) RunID() string { return d.runID }

// State returns the current run state
func (d *Driver) State() RunState { return RunState(d.state.Load()) }

// RequestStop asks the loop to finish after the current iteration.
// Safe from any goroutine, any number of times.
func (d *Driver) RequestStop(reason string) {
	if !d.interrupt.Requested() {
		d.logger.Info("stop requested", zap.String("reason", reason))
	}
	d.interrupt.Trigger(reason)
}

// Run executes the full lifecycle and returns nil only for an orderly run.
// Engine shutdown and source release happen exactly once for whatever was
// opened, including when the loop panics.
func (d *Driver) Run(ctx context.Context) (err error) {
	d.mu.Lock()
	d.startedAt = time.Now()
	d.mu.Unlock()

	d.logger.Info("run starting",
		zap.String("capture", d.cfg.Capture.Spec),
		zap.String("engine", d.cfg.Engine.Kind),
		zap.String("vocabulary", d.cfg.Engine.Vocabulary),
		zap.String("settings", d.cfg.Engine.Settings))

	src, err := d.resolver.Resolve(ctx, d.cfg.Capture.Spec)
	if err != nil {
		d.logger.Error("open capture", zap.Error(err))
		d.transition(StateShutDown)
		d.finish(ExitFailed, err)
		return err
	}
	d.mu.Lock()
	d.sourceName = src.Name()
	d.mu.Unlock()

	var eng engine.Engine
	exit := ExitFailed
	defer func() {
		r := recover()
		if r != nil {
			d.logger.Error("run panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("run panicked: %v", r)
		}
		d.transition(StateDraining)
		err = multierr.Append(err, d.teardown(ctx, eng, src))
		d.transition(StateShutDown)
		d.finish(exit, err)
		if r != nil {
			panic(r)
		}
	}()

	ec, err := d.engineConfig()
	if err != nil {
		return err
	}
	eng, err = d.newEngine(ctx, ec)
	if err != nil {
		eng = nil
		d.logger.Error("start engine", zap.Error(err))
		if errors.Is(err, ErrEngineInit) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrEngineInit, err)
	}

	d.transition(StateRunning)
	d.logger.Info("tracking", zap.String("source", src.Name()))

	loop := &Loop{
		source:    src,
		engine:    eng,
		stamper:   d.stamper,
		sink:      d.sink,
		interrupt: d.interrupt,
		maxFrames: d.cfg.Loop.MaxFrames,
		stats:     &d.stats,
		logger:    d.logger,
	}
	exit, err = loop.Run(ctx)
	return err
}

func (d *Driver) engineConfig() (engine.Config, error) {
	mode, err := engine.ParseMode(d.cfg.Engine.Mode)
	if err != nil {
		return engine.Config{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return engine.Config{
		Vocabulary:      d.cfg.Engine.Vocabulary,
		Settings:        d.cfg.Engine.Settings,
		Mode:            mode,
		EnableViewer:    d.cfg.Engine.Viewer,
		Command:         d.cfg.Engine.Command,
		Args:            d.cfg.Engine.Args,
		StartTimeout:    d.cfg.Engine.StartTimeout,
		ShutdownTimeout: d.cfg.Engine.ShutdownTimeout,
		Logger:          d.logger.Named("engine"),
	}, nil
}

// teardown shuts the engine down before the source is released
func (d *Driver) teardown(ctx context.Context, eng engine.Engine, src source.Source) error {
	var errs error
	if eng != nil {
		d.logger.Info("shutting down engine")
		if err := eng.Shutdown(ctx); err != nil {
			d.logger.Error("engine shutdown", zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("shutdown engine: %w", err))
		}
	}
	if err := src.Release(); err != nil {
		d.logger.Error("release capture", zap.Error(err))
		errs = multierr.Append(errs, fmt.Errorf("release capture: %w", err))
	}
	return errs
}

func (d *Driver) transition(to RunState) {
	from := d.State()
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		d.logger.Error("state change refused",
			zap.Error(ErrInvalidTransition),
			zap.Stringer("from", from),
			zap.Stringer("to", to))
		return
	}
	d.state.Store(int32(to))
	metrics.RunState.Set(float64(to))
	d.logger.Debug("state", zap.Stringer("from", from), zap.Stringer("to", to))
}

func (d *Driver) finish(exit ExitReason, err error) {
	d.mu.Lock()
	d.exit = exit
	d.err = err
	elapsed := time.Since(d.startedAt)
	d.mu.Unlock()

	metrics.RunsTotal.WithLabelValues(exit.String()).Inc()
	c := d.stats.Snapshot()
	fields := []zap.Field{
		zap.Stringer("exit", exit),
		zap.Duration("elapsed", elapsed),
		zap.Int64("frames_read", c.FramesRead),
		zap.Int64("frames_tracked", c.FramesTracked),
		zap.Int64("tracking_failures", c.TrackingFailures),
	}
	if err != nil {
		d.logger.Error("run failed", append(fields, zap.Error(err))...)
		return
	}
	d.logger.Info("run finished", fields...)
}

// Status is a JSON-friendly view of the run
type Status struct {
	RunID     string    `json:"run_id"`
	State     string    `json:"state"`
	Source    string    `json:"source,omitempty"`
	Engine    string    `json:"engine"`
	StartedAt time.Time `json:"started_at"`
	Exit      string    `json:"exit,omitempty"`
	Error     string    `json:"error,omitempty"`
	StopReq   string    `json:"stop_requested,omitempty"`
	Counters
}

// Status returns a snapshot of the run
func (d *Driver) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st := Status{
		RunID:     d.runID,
		State:     d.State().String(),
		Source:    d.sourceName,
		Engine:    d.cfg.Engine.Kind,
		StartedAt: d.startedAt,
		StopReq:   d.interrupt.Reason(),
		Counters:  d.stats.Snapshot(),
	}
	if d.exit != ExitNone {
		st.Exit = d.exit.String()
	}
	if d.err != nil {
		st.Error = d.err.Error()
	}
	return st
}
