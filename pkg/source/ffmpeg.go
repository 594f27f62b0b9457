package source

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"go.uber.org/zap"

	"github.com/video-system/go-slam-capture/internal/ffmpeg"
)

func init() {
	Register("ffmpeg", newFFmpegBackend)
}

// ffmpegBackend decodes any input ffmpeg understands (v4l2 and avfoundation
// devices, files, rtsp/http/srt URLs) into raw frames over a pipe.
type ffmpegBackend struct {
	ff     *ffmpeg.FFmpeg
	opts   Options
	logger *zap.Logger
}

func newFFmpegBackend(opts Options) (Backend, error) {
	if opts.Format.BytesPerPixel() == 0 {
		return nil, fmt.Errorf("unsupported pixel format %q", opts.Format)
	}
	ff, err := ffmpeg.New()
	if err != nil {
		return nil, fmt.Errorf("init ffmpeg: %w", err)
	}
	return &ffmpegBackend{
		ff:     ff,
		opts:   opts,
		logger: opts.Logger.With(zap.String("backend", "ffmpeg")),
	}, nil
}

func (b *ffmpegBackend) Name() string { return "ffmpeg" }

func (b *ffmpegBackend) OpenDevice(ctx context.Context, index int) (Source, error) {
	input, format, err := ffmpeg.DeviceInput(runtime.GOOS, index)
	if err != nil {
		return nil, err
	}
	if b.opts.InputFormat != "" {
		format = b.opts.InputFormat
	}
	return b.open(ctx, input, format)
}

func (b *ffmpegBackend) OpenPath(ctx context.Context, path string) (Source, error) {
	return b.open(ctx, path, b.opts.InputFormat)
}

func (b *ffmpegBackend) open(ctx context.Context, input, format string) (Source, error) {
	// The probe is the open check: the reader starts for any input and only
	// fails on its first read.
	info, err := b.ff.GetVideoInfo(ctx, input, format)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", input, err)
	}
	b.logger.Debug("probed capture input",
		zap.String("input", input),
		zap.String("resolution", info.Resolution()),
		zap.Float64("fps", info.Framerate),
		zap.String("codec", info.Codec))

	width, height := info.Width, info.Height
	if b.opts.Width > 0 && b.opts.Height > 0 {
		width, height = b.opts.Width, b.opts.Height
	}

	reader, err := b.ff.StartReader(ctx, ffmpeg.ReaderConfig{
		Input:       input,
		InputFormat: format,
		Width:       b.opts.Width,
		Height:      b.opts.Height,
		Framerate:   b.opts.Framerate,
		PixelFormat: string(b.opts.Format),
	})
	if err != nil {
		return nil, err
	}

	return &ffmpegSource{
		name:   input,
		reader: reader,
		width:  width,
		height: height,
		format: b.opts.Format,
		opened: true,
	}, nil
}

// ListDevices returns ffmpeg's own listing of capture devices on this host
func (b *ffmpegBackend) ListDevices(ctx context.Context) (string, error) {
	version, err := b.ff.Version(ctx)
	if err != nil {
		return "", fmt.Errorf("ffmpeg version: %w", err)
	}
	devices, err := b.ff.ListInputDevices(ctx)
	if err != nil {
		return "", err
	}
	return version + "\n" + devices, nil
}

// ffmpegSource reads fixed-size raw frames from an ffmpeg reader.
type ffmpegSource struct {
	name   string
	reader *ffmpeg.Reader
	width  int
	height int
	format PixelFormat
	seq    int64
	opened bool
}

func (s *ffmpegSource) Name() string { return s.name }

func (s *ffmpegSource) IsOpened() bool { return s.opened }

// ReadFrame allocates a fresh buffer per frame; the engine may keep it.
func (s *ffmpegSource) ReadFrame(ctx context.Context) (*Frame, error) {
	if !s.opened {
		return nil, io.EOF
	}
	buf := make([]byte, s.width*s.height*s.format.BytesPerPixel())
	if err := s.reader.ReadFrame(buf); err != nil {
		s.opened = false
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read %s: %w (ffmpeg: %s)", s.name, err, s.reader.Stderr())
	}
	s.seq++
	return &Frame{
		Data:     buf,
		Width:    s.width,
		Height:   s.height,
		Format:   s.format,
		Sequence: s.seq,
	}, nil
}

func (s *ffmpegSource) Release() error {
	s.opened = false
	return s.reader.Close()
}
