package engine

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/video-system/go-slam-capture/pkg/source"
	"github.com/video-system/go-slam-capture/pkg/timestamp"
)

func init() {
	Register("null", NewNull)
}

// Null checks that its resources are readable and then tracks nothing. It
// is useful for exercising capture setups without a tracker installed.
type Null struct {
	logger *zap.Logger
	frames int64
	closed bool
}

// NewNull validates cfg's resources and returns a Null engine
func NewNull(ctx context.Context, cfg Config) (Engine, error) {
	for _, res := range []struct{ kind, path string }{
		{"vocabulary", cfg.Vocabulary},
		{"settings", cfg.Settings},
	} {
		if err := checkResource(res.path); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInitialization, res.kind, err)
		}
	}

	logger := cfg.Logger.With(zap.String("engine", "null"))
	logger.Info("null engine ready",
		zap.String("vocabulary", cfg.Vocabulary),
		zap.String("settings", cfg.Settings),
		zap.Stringer("mode", cfg.Mode))

	return &Null{logger: logger}, nil
}

func (n *Null) Track(ctx context.Context, frame *source.Frame, ts timestamp.Timestamp) (Pose, error) {
	if n.closed {
		return EmptyPose, ErrTerminated
	}
	n.frames++
	return EmptyPose, nil
}

func (n *Null) Shutdown(ctx context.Context) error {
	n.closed = true
	n.logger.Info("null engine shut down", zap.Int64("frames", n.frames))
	return nil
}

// checkResource requires path to name a readable, non-empty regular file
func checkResource(path string) error {
	if path == "" {
		return fmt.Errorf("no path given")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	return nil
}
