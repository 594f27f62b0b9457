//go:build opencv

package source

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

func init() {
	Register("opencv", newOpenCVBackend)
}

// openCVBackend opens devices, files and stream URIs through OpenCV's
// VideoCapture.
type openCVBackend struct {
	opts   Options
	logger *zap.Logger
}

func newOpenCVBackend(opts Options) (Backend, error) {
	return &openCVBackend{
		opts:   opts,
		logger: opts.Logger.With(zap.String("backend", "opencv")),
	}, nil
}

func (b *openCVBackend) Name() string { return "opencv" }

func (b *openCVBackend) OpenDevice(ctx context.Context, index int) (Source, error) {
	vc, err := gocv.VideoCaptureDevice(index)
	if err != nil {
		return nil, err
	}
	b.configure(vc)
	return newCVSource(fmt.Sprintf("device:%d", index), vc), nil
}

func (b *openCVBackend) OpenPath(ctx context.Context, path string) (Source, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, err
	}
	return newCVSource(path, vc), nil
}

// configure applies requested geometry to a device; drivers may ignore it.
func (b *openCVBackend) configure(vc *gocv.VideoCapture) {
	if b.opts.Width > 0 && b.opts.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(b.opts.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(b.opts.Height))
	}
	if b.opts.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(b.opts.Framerate))
	}
}

type cvSource struct {
	name     string
	vc       *gocv.VideoCapture
	mat      gocv.Mat
	seq      int64
	released bool
}

func newCVSource(name string, vc *gocv.VideoCapture) *cvSource {
	return &cvSource{name: name, vc: vc, mat: gocv.NewMat()}
}

func (s *cvSource) Name() string { return s.name }

func (s *cvSource) IsOpened() bool {
	return !s.released && s.vc.IsOpened()
}

// ReadFrame copies the decoded Mat out so the frame outlives the next read.
func (s *cvSource) ReadFrame(ctx context.Context) (*Frame, error) {
	if !s.IsOpened() {
		return nil, io.EOF
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, io.EOF
	}

	var format PixelFormat
	switch s.mat.Channels() {
	case 1:
		format = FormatGray
	case 3:
		format = FormatBGR24
	case 4:
		format = FormatBGRA
	default:
		return nil, fmt.Errorf("unsupported channel count %d", s.mat.Channels())
	}

	s.seq++
	return &Frame{
		Data:     s.mat.ToBytes(),
		Width:    s.mat.Cols(),
		Height:   s.mat.Rows(),
		Format:   format,
		Sequence: s.seq,
	}, nil
}

func (s *cvSource) Release() error {
	if s.released {
		return nil
	}
	s.released = true
	s.mat.Close()
	return s.vc.Close()
}
