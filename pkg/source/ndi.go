package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/video-system/go-slam-capture/internal/ndi"
)

// ndiIdleTimeout ends a stream that stopped sending video
const ndiIdleTimeout = 5 * time.Second

func init() {
	Register("ndi", newNDIBackend)
}

// ndiBackend receives NDI network video. Device indices select from the
// sources discovered on the network; paths name a source, optionally as
// ndi://<name>.
type ndiBackend struct {
	opts   Options
	logger *zap.Logger
}

func newNDIBackend(opts Options) (Backend, error) {
	if opts.Format != FormatBGRA && opts.Format != FormatBGR24 {
		return nil, fmt.Errorf("ndi backend delivers bgra or bgr24, not %q", opts.Format)
	}
	return &ndiBackend{
		opts:   opts,
		logger: opts.Logger.With(zap.String("backend", "ndi")),
	}, nil
}

func (b *ndiBackend) Name() string { return "ndi" }

func (b *ndiBackend) OpenDevice(ctx context.Context, index int) (Source, error) {
	sources, err := ndi.DiscoverSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover NDI sources: %w", err)
	}
	if index < 0 || index >= len(sources) {
		return nil, fmt.Errorf("NDI source %d not found (%d discovered)", index, len(sources))
	}
	return b.open(ctx, sources[index])
}

// ListDevices lists discovered NDI sources in device index order
func (b *ndiBackend) ListDevices(ctx context.Context) (string, error) {
	sources, err := ndi.DiscoverSources(ctx)
	if err != nil {
		return "", fmt.Errorf("discover NDI sources: %w", err)
	}
	var sb strings.Builder
	for i, src := range sources {
		fmt.Fprintf(&sb, "%d: %s%s", i, ndi.URIScheme, src.Name)
		if src.Address != "" {
			fmt.Fprintf(&sb, " (%s)", src.Address)
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func (b *ndiBackend) OpenPath(ctx context.Context, path string) (Source, error) {
	name, ok := ndi.ParseURI(path)
	if !ok {
		name = path
	}
	return b.open(ctx, ndi.Source{Name: name})
}

func (b *ndiBackend) open(ctx context.Context, src ndi.Source) (Source, error) {
	recv, err := ndi.NewReceiver(ctx, ndi.ReceiverConfig{
		Source:      src,
		ColorFormat: ndi.ColorFormatBGRXBGRA,
		Bandwidth:   ndi.BandwidthHighest,
	})
	if err != nil {
		return nil, fmt.Errorf("open NDI source %q: %w", src.Name, err)
	}
	b.logger.Info("NDI source connected",
		zap.String("name", recv.Source().Name),
		zap.String("address", recv.Source().Address))

	return &ndiSource{
		recv:   recv,
		name:   ndi.URIScheme + recv.Source().Name,
		format: b.opts.Format,
		opened: true,
	}, nil
}

type ndiSource struct {
	recv   *ndi.Receiver
	name   string
	format PixelFormat
	seq    int64
	opened bool
}

func (s *ndiSource) Name() string { return s.name }

func (s *ndiSource) IsOpened() bool { return s.opened }

func (s *ndiSource) ReadFrame(ctx context.Context) (*Frame, error) {
	if !s.opened {
		return nil, io.EOF
	}

	deadline := time.Now().Add(ndiIdleTimeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vf, err := s.recv.CaptureVideo(250 * time.Millisecond)
		if err != nil {
			s.opened = false
			return nil, fmt.Errorf("read %s: %w", s.name, err)
		}
		if vf == nil {
			continue
		}

		data, err := vf.Packed()
		if err != nil {
			s.opened = false
			return nil, err
		}
		if s.format == FormatBGR24 {
			data = bgraToBGR(data)
		}
		s.seq++
		return &Frame{
			Data:     data,
			Width:    vf.Width,
			Height:   vf.Height,
			Format:   s.format,
			Sequence: s.seq,
		}, nil
	}

	s.opened = false
	return nil, errors.New("no NDI video within " + ndiIdleTimeout.String())
}

func (s *ndiSource) Release() error {
	s.opened = false
	s.recv.Destroy()
	return nil
}

// bgraToBGR drops the alpha channel of packed 32-bit pixels
func bgraToBGR(src []byte) []byte {
	n := len(src) / 4
	dst := make([]byte, n*3)
	for i := 0; i < n; i++ {
		copy(dst[i*3:i*3+3], src[i*4:i*4+3])
	}
	return dst
}
