//go:build !opencv

package source

import "errors"

// ErrOpenCVUnavailable is returned when the binary was built without the
// opencv tag.
var ErrOpenCVUnavailable = errors.New("opencv backend not available - rebuild with -tags opencv")

func init() {
	Register("opencv", func(Options) (Backend, error) {
		return nil, ErrOpenCVUnavailable
	})
}
