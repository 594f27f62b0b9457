package driver

import (
	"errors"

	"github.com/video-system/go-slam-capture/pkg/engine"
	"github.com/video-system/go-slam-capture/pkg/source"
)

var (
	// ErrConfiguration reports invalid options or config files
	ErrConfiguration = errors.New("invalid configuration")

	// ErrSourceResolution reports that no capture source could be opened
	ErrSourceResolution = source.ErrSourceResolution

	// ErrEngineInit reports that the tracking engine could not start
	ErrEngineInit = engine.ErrInitialization

	// ErrInvalidTransition reports a RunState change the state machine forbids
	ErrInvalidTransition = errors.New("invalid run state transition")
)

// ExitCode maps a run result to the process exit code
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
