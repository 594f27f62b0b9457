//go:build !ndi

package ndi

import (
	"context"
	"time"
)

// Initialize reports that the SDK is missing
func Initialize() error {
	return ErrNotAvailable
}

// Version returns "not available"
func Version() string {
	return "not available"
}

// IsAvailable returns false when NDI is not built
func IsAvailable() bool {
	return false
}

// DiscoverSources returns ErrNotAvailable
func DiscoverSources(ctx context.Context) ([]Source, error) {
	return nil, ErrNotAvailable
}

// ReceiverConfig configures NDI receiver
type ReceiverConfig struct {
	Source       Source
	ColorFormat  ColorFormat
	Bandwidth    Bandwidth
	ReceiverName string
	FindTimeout  time.Duration
}

// Receiver stub
type Receiver struct{}

// NewReceiver returns ErrNotAvailable
func NewReceiver(ctx context.Context, config ReceiverConfig) (*Receiver, error) {
	return nil, ErrNotAvailable
}

// Destroy is a no-op
func (r *Receiver) Destroy() {}

// Source returns an empty source
func (r *Receiver) Source() Source {
	return Source{}
}

// CaptureVideo returns ErrNotAvailable
func (r *Receiver) CaptureVideo(timeout time.Duration) (*VideoFrame, error) {
	return nil, ErrNotAvailable
}
