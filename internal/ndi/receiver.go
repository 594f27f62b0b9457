//go:build ndi

package ndi

/*
#include "ndi_sdk.h"

static inline void copy_video_data(uint8_t* dst, const NDIlib_video_frame_v2_t* frame) {
    memcpy(dst, frame->p_data, (size_t)frame->line_stride_in_bytes * frame->yres);
}
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"
)

// ReceiverConfig configures NDI receiver. Source.Address may be empty, in
// which case the source is looked up by name.
type ReceiverConfig struct {
	Source       Source
	ColorFormat  ColorFormat
	Bandwidth    Bandwidth
	ReceiverName string
	FindTimeout  time.Duration
}

// Receiver receives video from one NDI source
type Receiver struct {
	mu       sync.Mutex
	instance C.NDIlib_recv_instance_t
	source   Source
}

// NewReceiver connects to the configured source
func NewReceiver(ctx context.Context, config ReceiverConfig) (*Receiver, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}

	if config.FindTimeout == 0 {
		config.FindTimeout = 5 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < config.FindTimeout {
		config.FindTimeout = time.Until(deadline)
	}
	if config.Bandwidth == 0 {
		config.Bandwidth = BandwidthHighest
	}
	if config.ReceiverName == "" {
		config.ReceiverName = "go-slam-capture"
	}

	source := config.Source
	if source.Address == "" {
		f, err := newFinder()
		if err != nil {
			return nil, fmt.Errorf("create finder: %w", err)
		}
		source, err = f.findByName(source.Name, config.FindTimeout)
		f.destroy()
		if err != nil {
			return nil, err
		}
	}

	cRecvName := C.CString(config.ReceiverName)
	defer C.free(unsafe.Pointer(cRecvName))
	cName := C.CString(source.Name)
	defer C.free(unsafe.Pointer(cName))
	cAddr := C.CString(source.Address)
	defer C.free(unsafe.Pointer(cAddr))

	settings := C.NDIlib_recv_create_v3_t{
		source_to_connect_to: C.NDIlib_source_t{
			p_ndi_name:    cName,
			p_url_address: cAddr,
		},
		color_format:       C.int(config.ColorFormat),
		bandwidth:          C.int(config.Bandwidth),
		allow_video_fields: C.bool(false),
		p_ndi_recv_name:    cRecvName,
	}

	instance := C.NDIlib_recv_create_v3(&settings)
	if instance == nil {
		return nil, errors.New("failed to create NDI receiver")
	}
	return &Receiver{instance: instance, source: source}, nil
}

// Destroy releases receiver resources. Safe to call twice.
func (r *Receiver) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.instance != nil {
		C.NDIlib_recv_destroy(r.instance)
		r.instance = nil
	}
}

// Source returns the connected source
func (r *Receiver) Source() Source {
	return r.source
}

// CaptureVideo waits up to timeout for one video frame. It returns nil, nil
// when nothing but audio, metadata or status changes arrived in time.
func (r *Receiver) CaptureVideo(timeout time.Duration) (*VideoFrame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.instance == nil {
		return nil, errors.New("receiver destroyed")
	}

	var cFrame C.NDIlib_video_frame_v2_t
	frameType := C.NDIlib_recv_capture_v2(r.instance, &cFrame, nil, nil, C.uint32_t(timeout.Milliseconds()))

	switch FrameType(frameType) {
	case FrameTypeVideo:
		defer C.NDIlib_recv_free_video_v2(r.instance, &cFrame)

		size := int(cFrame.line_stride_in_bytes) * int(cFrame.yres)
		if size <= 0 {
			return nil, nil
		}
		data := make([]byte, size)
		C.copy_video_data((*C.uint8_t)(unsafe.Pointer(&data[0])), &cFrame)

		return &VideoFrame{
			Width:      int(cFrame.xres),
			Height:     int(cFrame.yres),
			FourCC:     uint32(cFrame.FourCC),
			FrameRateN: int(cFrame.frame_rate_N),
			FrameRateD: int(cFrame.frame_rate_D),
			Data:       data,
			LineStride: int(cFrame.line_stride_in_bytes),
			Timestamp:  int64(cFrame.timestamp),
		}, nil

	case FrameTypeError:
		return nil, errors.New("NDI receive error")

	default:
		return nil, nil
	}
}
