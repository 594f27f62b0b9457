package source

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Resolver turns a source specifier into an opened capture handle.
type Resolver struct {
	backend Backend
	logger  *zap.Logger
}

// NewResolver creates a resolver on top of backend
func NewResolver(backend Backend, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		backend: backend,
		logger:  logger.With(zap.String("component", "resolver"), zap.String("backend", backend.Name())),
	}
}

// Resolve opens the source named by raw. Device indices are tried before
// paths; a device that fails to open falls back to opening raw literally.
// The returned handle is open. On failure the error wraps ErrSourceResolution
// and nothing is left open.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Source, error) {
	spec := ParseSpecifier(raw)
	if spec.ParseErr != nil {
		r.logger.Warn("capture specifier is not a device index, trying it as a path",
			zap.String("spec", raw), zap.Error(spec.ParseErr))
	}

	var errs error

	if spec.IsDevice {
		src, err := r.backend.OpenDevice(ctx, spec.Index)
		if usable(src, err) {
			r.logger.Info("capture device opened", zap.Int("index", spec.Index), zap.String("source", src.Name()))
			return src, nil
		}
		errs = multierr.Append(errs, r.discard(src, openErr(err, fmt.Sprintf("device %d", spec.Index))))

		// Nothing literal to fall back to
		if spec.Raw == "" {
			return nil, fmt.Errorf("%w: %v", ErrSourceResolution, errs)
		}
		r.logger.Warn("capture device did not open, trying specifier as a path",
			zap.Int("index", spec.Index), zap.Error(errs))
	}

	src, err := r.backend.OpenPath(ctx, spec.Raw)
	if usable(src, err) {
		r.logger.Info("capture input opened", zap.String("path", spec.Raw), zap.String("source", src.Name()))
		return src, nil
	}
	errs = multierr.Append(errs, r.discard(src, openErr(err, fmt.Sprintf("path %q", spec.Raw))))

	return nil, fmt.Errorf("%w: %v", ErrSourceResolution, errs)
}

// discard releases a handle that came back unusable
func (r *Resolver) discard(src Source, cause error) error {
	if src == nil {
		return cause
	}
	if err := src.Release(); err != nil {
		return multierr.Append(cause, fmt.Errorf("release %s: %w", src.Name(), err))
	}
	return cause
}

func usable(src Source, err error) bool {
	return err == nil && src != nil && src.IsOpened()
}

func openErr(err error, what string) error {
	if err == nil {
		err = errors.New("not opened")
	}
	return fmt.Errorf("open %s: %w", what, err)
}
