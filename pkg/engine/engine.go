package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/video-system/go-slam-capture/pkg/source"
	"github.com/video-system/go-slam-capture/pkg/timestamp"
)

var (
	// ErrInitialization wraps failures loading the vocabulary or settings
	// resources or starting the engine.
	ErrInitialization = errors.New("tracking engine initialization failed")

	// ErrTerminated is returned by Track when the engine can no longer
	// accept frames. Unlike a tracking failure it ends the run.
	ErrTerminated = errors.New("tracking engine terminated")
)

// Engine is the tracking collaborator. Calls are synchronous and never
// concurrent; any internal threads are the engine's business.
type Engine interface {
	// Track consumes one frame. An empty Pose means tracking failed for this
	// frame, which is expected and not an error.
	Track(ctx context.Context, frame *source.Frame, ts timestamp.Timestamp) (Pose, error)

	// Shutdown stops the engine. Called exactly once, after the last Track.
	Shutdown(ctx context.Context) error
}

// Mode is the sensor configuration the engine runs in
type Mode int

const (
	Monocular Mode = iota
	Stereo
	RGBD
)

func (m Mode) String() string {
	switch m {
	case Monocular:
		return "monocular"
	case Stereo:
		return "stereo"
	case RGBD:
		return "rgbd"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a mode name
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "monocular", "mono":
		return Monocular, nil
	case "stereo":
		return Stereo, nil
	case "rgbd":
		return RGBD, nil
	default:
		return Monocular, fmt.Errorf("unknown engine mode %q", s)
	}
}

// Config holds engine construction parameters. Vocabulary and Settings are
// opaque resource paths handed to the engine.
type Config struct {
	Vocabulary   string
	Settings     string
	Mode         Mode
	EnableViewer bool

	// exec engine
	Command         string
	Args            []string
	StartTimeout    time.Duration
	ShutdownTimeout time.Duration

	Logger *zap.Logger
}

// Factory constructs and initializes an engine
type Factory func(ctx context.Context, cfg Config) (Engine, error)

// Registry holds registered engine implementations
var Registry = make(map[string]Factory)

// Register registers an engine implementation
func Register(name string, factory Factory) {
	Registry[name] = factory
}

// New constructs the named engine. Failures wrap ErrInitialization.
func New(ctx context.Context, name string, cfg Config) (Engine, error) {
	factory, ok := Registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown engine %q (available: %v)", ErrInitialization, name, Names())
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	eng, err := factory(ctx, cfg)
	if err != nil {
		if errors.Is(err, ErrInitialization) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInitialization, err)
	}
	return eng, nil
}

// Names returns the registered engine names in sorted order
func Names() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
