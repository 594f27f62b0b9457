package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// stopTimeout bounds how long Close waits after SIGINT before killing ffmpeg.
const stopTimeout = 5 * time.Second

// ReaderConfig holds configuration for a raw frame reader
type ReaderConfig struct {
	// Input source (file path, device, or URL)
	Input       string
	InputFormat string // Optional: force input format (v4l2, avfoundation)

	Width       int    // Output width (0 = source)
	Height      int    // Output height (0 = source)
	Framerate   int    // Requested capture rate (0 = source)
	PixelFormat string // rawvideo pix_fmt, e.g. bgr24 or gray
}

// Reader is a running ffmpeg process decoding an input to raw frames on stdout
type Reader struct {
	cmd    *exec.Cmd
	stdout *bufio.Reader
	done   chan error

	mu     sync.Mutex
	stderr []string
	closed bool
}

// StartReader starts ffmpeg decoding cfg.Input into raw frames
func (f *FFmpeg) StartReader(ctx context.Context, cfg ReaderConfig) (*Reader, error) {
	if cfg.PixelFormat == "" {
		cfg.PixelFormat = "bgr24"
	}

	cmd := exec.CommandContext(ctx, f.binaryPath, buildReaderArgs(cfg)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("get stdout pipe: %w", err)
	}

	// Capture stderr for diagnostics
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	r := &Reader{
		cmd:    cmd,
		stdout: bufio.NewReaderSize(stdout, 1<<20),
		done:   make(chan error, 1),
	}

	go r.collectStderr(bufio.NewScanner(stderrPipe))

	return r, nil
}

// buildReaderArgs builds FFmpeg arguments for rawvideo decoding to stdout
func buildReaderArgs(cfg ReaderConfig) []string {
	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error"}

	// Input
	if cfg.InputFormat != "" {
		args = append(args, "-f", cfg.InputFormat)
		if cfg.Framerate > 0 {
			args = append(args, "-framerate", fmt.Sprintf("%d", cfg.Framerate))
		}
	}
	args = append(args, "-i", cfg.Input)

	args = append(args, "-an")

	// Scaling if specified
	if cfg.Width > 0 && cfg.Height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", cfg.Width, cfg.Height))
	}

	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", cfg.PixelFormat,
		"pipe:1",
	)
	return args
}

// collectStderr keeps the last lines ffmpeg printed for error reporting
func (r *Reader) collectStderr(scanner *bufio.Scanner) {
	for scanner.Scan() {
		r.mu.Lock()
		r.stderr = append(r.stderr, scanner.Text())
		if len(r.stderr) > 20 {
			r.stderr = r.stderr[len(r.stderr)-20:]
		}
		r.mu.Unlock()
	}
}

// ReadFrame fills buf with exactly one frame. It returns io.EOF once the
// input is exhausted or the process exited.
func (r *Reader) ReadFrame(buf []byte) error {
	_, err := io.ReadFull(r.stdout, buf)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	return err
}

// Stderr returns the tail of ffmpeg's error output
func (r *Reader) Stderr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.stderr, "\n")
}

// Close stops ffmpeg: SIGINT first, kill after stopTimeout. Idempotent.
func (r *Reader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if r.cmd.Process != nil {
		// Send SIGINT for graceful shutdown; fails harmlessly if already exited
		r.cmd.Process.Signal(os.Interrupt)
	}

	go func() { r.done <- r.cmd.Wait() }()

	var err error
	select {
	case err = <-r.done:
	case <-time.After(stopTimeout):
		r.cmd.Process.Kill()
		err = <-r.done
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// ffmpeg exits non-zero on SIGINT
		return nil
	}
	return err
}
