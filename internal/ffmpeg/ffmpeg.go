package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// FFmpeg wraps FFmpeg binary execution
type FFmpeg struct {
	binaryPath string
	probePath  string
}

// New creates a new FFmpeg wrapper
func New() (*FFmpeg, error) {
	ffmpegPath, err := findBinary("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	ffprobePath, err := findBinary("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	return &FFmpeg{
		binaryPath: ffmpegPath,
		probePath:  ffprobePath,
	}, nil
}

// findBinary locates a binary in PATH or common locations
func findBinary(name string) (string, error) {
	// Try PATH first
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	// Common locations by OS
	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/opt/homebrew/bin/" + name,
			"/usr/local/bin/" + name,
		}
	case "linux":
		paths = []string{
			"/usr/bin/" + name,
			"/usr/local/bin/" + name,
		}
	case "windows":
		paths = []string{
			"C:\\ffmpeg\\bin\\" + name + ".exe",
			"C:\\Program Files\\ffmpeg\\bin\\" + name + ".exe",
		}
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH or common locations", name)
}

// Version returns the FFmpeg version string
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, f.binaryPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}
	return "", fmt.Errorf("no version output")
}

// DeviceInput maps a capture device index to an FFmpeg input and demuxer
// for the given OS.
func DeviceInput(goos string, index int) (input, format string, err error) {
	if index < 0 {
		return "", "", fmt.Errorf("invalid device index %d", index)
	}
	switch goos {
	case "linux":
		return fmt.Sprintf("/dev/video%d", index), "v4l2", nil
	case "darwin":
		// avfoundation takes "<video>:<audio>"
		return fmt.Sprintf("%d:none", index), "avfoundation", nil
	default:
		return "", "", fmt.Errorf("device index capture unsupported on %s", goos)
	}
}

// ListInputDevices lists available input devices (macOS AVFoundation, Linux v4l2)
func (f *FFmpeg) ListInputDevices(ctx context.Context) (string, error) {
	var args []string

	switch runtime.GOOS {
	case "darwin":
		args = []string{"-f", "avfoundation", "-list_devices", "true", "-i", ""}
	case "linux":
		args = []string{"-f", "v4l2", "-list_devices", "true", "-i", "/dev/video0"}
	case "windows":
		args = []string{"-f", "dshow", "-list_devices", "true", "-i", "dummy"}
	default:
		return "", fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}

	cmd := exec.CommandContext(ctx, f.binaryPath, args...)
	output, _ := cmd.CombinedOutput() // This will "fail" but output device list
	return string(output), nil
}
