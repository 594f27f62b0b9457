// Package sink receives each tracked frame after the engine is done with it:
// trajectory files, on-screen display, or nothing at all.
package sink

import (
	"go.uber.org/multierr"

	"github.com/video-system/go-slam-capture/pkg/engine"
	"github.com/video-system/go-slam-capture/pkg/source"
	"github.com/video-system/go-slam-capture/pkg/timestamp"
)

// Observation is one frame as the loop saw it
type Observation struct {
	Frame     *source.Frame
	Timestamp timestamp.Timestamp
	Pose      engine.Pose
}

// Sink consumes observations. Sinks must not keep Frame past Observe and
// must not modify Pose. Errors are reported, never fatal to the loop.
type Sink interface {
	Observe(obs Observation) error
	Close() error
}

// Nop discards everything
type Nop struct{}

func (Nop) Observe(Observation) error { return nil }
func (Nop) Close() error              { return nil }

// Multi fans out to several sinks in order
type Multi []Sink

func (m Multi) Observe(obs Observation) error {
	var errs error
	for _, s := range m {
		errs = multierr.Append(errs, s.Observe(obs))
	}
	return errs
}

func (m Multi) Close() error {
	var errs error
	for _, s := range m {
		errs = multierr.Append(errs, s.Close())
	}
	return errs
}
