package ndi

import (
	"bytes"
	"context"
	"testing"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		spec string
		name string
		ok   bool
	}{
		{"ndi://STUDIO (Camera 1)", "STUDIO (Camera 1)", true},
		{"ndi://", "", false},
		{"rtsp://cam/stream", "", false},
		{"0", "", false},
	}
	for _, tt := range tests {
		name, ok := ParseURI(tt.spec)
		if name != tt.name || ok != tt.ok {
			t.Errorf("ParseURI(%q) = %q, %v; want %q, %v", tt.spec, name, ok, tt.name, tt.ok)
		}
	}
}

func TestPackedStripsStride(t *testing.T) {
	// 2x2 BGRA with 4 bytes of padding per row
	data := []byte{
		1, 1, 1, 1, 2, 2, 2, 2, 0, 0, 0, 0,
		3, 3, 3, 3, 4, 4, 4, 4, 0, 0, 0, 0,
	}
	f := &VideoFrame{Width: 2, Height: 2, FourCC: FourCCBGRA, LineStride: 12, Data: data}

	got, err := f.Packed()
	if err != nil {
		t.Fatalf("Packed: %v", err)
	}
	want := []byte{1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4}
	if !bytes.Equal(got, want) {
		t.Errorf("Packed = %v, want %v", got, want)
	}
}

func TestPackedTight(t *testing.T) {
	data := make([]byte, 2*2*4)
	f := &VideoFrame{Width: 2, Height: 2, FourCC: FourCCBGRX, LineStride: 8, Data: data}
	got, err := f.Packed()
	if err != nil {
		t.Fatalf("Packed: %v", err)
	}
	if len(got) != 16 {
		t.Errorf("len = %d, want 16", len(got))
	}
}

func TestPackedRejects(t *testing.T) {
	tests := []*VideoFrame{
		{Width: 2, Height: 2, FourCC: FourCCUYVY, LineStride: 4, Data: make([]byte, 8)},
		{Width: 2, Height: 2, FourCC: FourCCBGRA, LineStride: 4, Data: make([]byte, 16)},
		{Width: 2, Height: 2, FourCC: FourCCBGRA, LineStride: 8, Data: make([]byte, 10)},
	}
	for i, f := range tests {
		if _, err := f.Packed(); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestStubWithoutSDK(t *testing.T) {
	if IsAvailable() {
		t.Skip("NDI SDK present")
	}
	if _, err := NewReceiver(context.Background(), ReceiverConfig{}); err == nil {
		t.Error("expected NewReceiver to fail without the SDK")
	}
}
