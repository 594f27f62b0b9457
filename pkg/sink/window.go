//go:build opencv

package sink

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/video-system/go-slam-capture/pkg/source"
)

// Window shows every frame in a native window. Any key press calls onKey,
// which the driver wires to its interrupt.
type Window struct {
	window *gocv.Window
	onKey  func()
}

// NewWindow opens a display window titled title
func NewWindow(title string, onKey func()) (Sink, error) {
	return &Window{window: gocv.NewWindow(title), onKey: onKey}, nil
}

func (w *Window) Observe(obs Observation) error {
	f := obs.Frame
	if f.Empty() {
		return nil
	}

	var matType gocv.MatType
	switch f.Format {
	case source.FormatBGR24:
		matType = gocv.MatTypeCV8UC3
	case source.FormatBGRA:
		matType = gocv.MatTypeCV8UC4
	case source.FormatGray:
		matType = gocv.MatTypeCV8UC1
	default:
		return fmt.Errorf("cannot display %s frames", f.Format)
	}

	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, matType, f.Data)
	if err != nil {
		return fmt.Errorf("wrap frame: %w", err)
	}
	defer mat.Close()

	w.window.IMShow(mat)
	if w.window.WaitKey(1) >= 0 && w.onKey != nil {
		w.onKey()
	}
	return nil
}

func (w *Window) Close() error {
	return w.window.Close()
}
