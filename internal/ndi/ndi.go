// Package ndi receives video from NDI network sources. The native SDK is
// only linked with -tags ndi; without it every entry point reports
// ErrNotAvailable.
package ndi

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotAvailable is returned when the binary was built without the NDI SDK
var ErrNotAvailable = errors.New("NDI SDK not available - build with -tags ndi")

// URIScheme prefixes capture specifiers that name an NDI source
const URIScheme = "ndi://"

// Source represents an NDI source on the network
type Source struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// VideoFrame is one received video frame copied into Go memory
type VideoFrame struct {
	Width      int
	Height     int
	FourCC     uint32
	FrameRateN int
	FrameRateD int
	Data       []byte
	LineStride int
	Timestamp  int64 // 100ns units, sender clock
}

// FrameType indicates the type of frame received
type FrameType int

const (
	FrameTypeNone         FrameType = 0
	FrameTypeVideo        FrameType = 1
	FrameTypeAudio        FrameType = 2
	FrameTypeMetadata     FrameType = 3
	FrameTypeError        FrameType = 4
	FrameTypeStatusChange FrameType = 100
)

// FourCC video format codes
const (
	FourCCUYVY = 0x59565955 // YCbCr 4:2:2
	FourCCBGRA = 0x41524742 // BGRA
	FourCCBGRX = 0x58524742 // BGRX
	FourCCRGBA = 0x41424752 // RGBA
	FourCCRGBX = 0x58424752 // RGBX
)

// ColorFormat options for receiver
type ColorFormat int

const (
	ColorFormatBGRXBGRA ColorFormat = 0
	ColorFormatUYVYBGRA ColorFormat = 1
	ColorFormatRGBXRGBA ColorFormat = 2
	ColorFormatUYVYRGBA ColorFormat = 3
	ColorFormatFastest  ColorFormat = 100
	ColorFormatBest     ColorFormat = 101
)

// Bandwidth options for receiver
type Bandwidth int

const (
	BandwidthLowest  Bandwidth = 0
	BandwidthHighest Bandwidth = 100
)

// ParseURI extracts the source name from "ndi://<name>"
func ParseURI(spec string) (string, bool) {
	if !strings.HasPrefix(spec, URIScheme) {
		return "", false
	}
	name := strings.TrimPrefix(spec, URIScheme)
	return name, name != ""
}

// Packed returns the frame's pixels without row padding. Only 32-bit
// formats (BGRA, BGRX, RGBA, RGBX) are supported.
func (f *VideoFrame) Packed() ([]byte, error) {
	switch f.FourCC {
	case FourCCBGRA, FourCCBGRX, FourCCRGBA, FourCCRGBX:
	default:
		return nil, fmt.Errorf("unsupported NDI pixel format 0x%08x", f.FourCC)
	}

	row := f.Width * 4
	if f.LineStride < row || len(f.Data) < f.LineStride*(f.Height-1)+row {
		return nil, fmt.Errorf("short NDI frame: %d bytes for %dx%d stride %d",
			len(f.Data), f.Width, f.Height, f.LineStride)
	}
	if f.LineStride == row {
		return f.Data[:row*f.Height], nil
	}

	out := make([]byte, row*f.Height)
	for y := 0; y < f.Height; y++ {
		copy(out[y*row:(y+1)*row], f.Data[y*f.LineStride:])
	}
	return out, nil
}
