//go:build ndi

package ndi

/*
#cgo darwin LDFLAGS: -L/Library/NDI\ SDK\ for\ Apple/lib/macOS -lndi
#cgo linux LDFLAGS: -L/usr/lib -lndi
#cgo windows LDFLAGS: -L"C:/Program Files/NDI/NDI 5 SDK/Lib/x64" -lProcessing.NDI.Lib.x64
#include "ndi_sdk.h"
*/
import "C"

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	initOnce  sync.Once
	initError error
)

// Initialize initializes the NDI SDK once per process
func Initialize() error {
	initOnce.Do(func() {
		if !C.NDIlib_initialize() {
			initError = errors.New("failed to initialize NDI SDK - ensure NDI runtime is installed")
		}
	})
	return initError
}

// Version returns the NDI SDK version string
func Version() string {
	if err := Initialize(); err != nil {
		return "unknown (not initialized)"
	}
	return C.GoString(C.NDIlib_version())
}

// IsAvailable checks if NDI SDK is available and can be initialized
func IsAvailable() bool {
	return Initialize() == nil
}

// DiscoverSources lists NDI sources on the network, waiting until ctx's
// deadline or 5 seconds.
func DiscoverSources(ctx context.Context) ([]Source, error) {
	finder, err := newFinder()
	if err != nil {
		return nil, err
	}
	defer finder.destroy()

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	return finder.waitForSources(timeout), nil
}
