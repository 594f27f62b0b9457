//go:build !opencv

package sink

import "errors"

// ErrDisplayUnavailable is returned when the binary was built without the
// opencv tag.
var ErrDisplayUnavailable = errors.New("display not available - rebuild with -tags opencv")

// NewWindow is unavailable without OpenCV
func NewWindow(title string, onKey func()) (Sink, error) {
	return nil, ErrDisplayUnavailable
}
