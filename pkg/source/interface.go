package source

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// ErrSourceResolution is returned when no capture source could be opened by
// any strategy.
var ErrSourceResolution = errors.New("unable to open any capture input")

// Source is an open, readable capture handle.
//
// Once IsOpened reports false the handle must not be read again. Release
// must be called exactly once by the owner.
type Source interface {
	// Metadata
	Name() string

	// Lifecycle
	IsOpened() bool
	Release() error

	// Capture. An empty frame or an error means the stream is exhausted.
	ReadFrame(ctx context.Context) (*Frame, error)
}

// Backend opens capture handles. Implementations return a handle even when
// it failed to open if they can (IsOpened false), so the caller decides.
type Backend interface {
	Name() string
	OpenDevice(ctx context.Context, index int) (Source, error)
	OpenPath(ctx context.Context, path string) (Source, error)
}

// DeviceLister is implemented by backends that can enumerate capture devices
type DeviceLister interface {
	ListDevices(ctx context.Context) (string, error)
}

// Options holds backend configuration
type Options struct {
	Width       int
	Height      int
	Framerate   int
	Format      PixelFormat
	InputFormat string // ffmpeg demuxer override
	Logger      *zap.Logger
}

// Frame represents a captured video frame
type Frame struct {
	Data     []byte
	Width    int
	Height   int
	Format   PixelFormat
	Sequence int64 // source order, starting at 1
}

// Empty reports whether the frame carries no image.
func (f *Frame) Empty() bool {
	return f == nil || len(f.Data) == 0 || f.Width <= 0 || f.Height <= 0
}

// Stride returns the row size in bytes
func (f *Frame) Stride() int {
	return f.Width * f.Format.BytesPerPixel()
}

// PixelFormat represents a video pixel format
type PixelFormat string

const (
	FormatBGR24 PixelFormat = "bgr24"
	FormatRGB24 PixelFormat = "rgb24"
	FormatBGRA  PixelFormat = "bgra"
	FormatGray  PixelFormat = "gray"
)

// BytesPerPixel returns the packed pixel size, or 0 for unknown formats
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case FormatBGR24, FormatRGB24:
		return 3
	case FormatBGRA:
		return 4
	case FormatGray:
		return 1
	default:
		return 0
	}
}

// Registry holds registered capture backends
var Registry = make(map[string]func(Options) (Backend, error))

// Register registers a capture backend
func Register(name string, factory func(Options) (Backend, error)) {
	Registry[name] = factory
}

// Get returns a capture backend by name
func Get(name string, opts Options) (Backend, error) {
	factory, ok := Registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown capture backend %q (available: %v)", name, Names())
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Format == "" {
		opts.Format = FormatBGR24
	}
	return factory(opts)
}

// Names returns the registered backend names in sorted order
func Names() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
