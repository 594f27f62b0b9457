package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/video-system/go-slam-capture/pkg/driver"
	"github.com/video-system/go-slam-capture/pkg/source"
)

// clipBackend serves a fixed number of tiny frames from any path
type clipBackend struct{ frames int }

func (b *clipBackend) Name() string { return "clip" }

func (b *clipBackend) OpenDevice(ctx context.Context, index int) (source.Source, error) {
	return nil, errors.New("no devices")
}

func (b *clipBackend) ListDevices(ctx context.Context) (string, error) {
	return "0: clip camera\n", nil
}

func (b *clipBackend) OpenPath(ctx context.Context, path string) (source.Source, error) {
	return &clipSource{name: path, left: b.frames}, nil
}

type clipSource struct {
	name string
	left int
	seq  int64
}

func (s *clipSource) Name() string   { return s.name }
func (s *clipSource) IsOpened() bool { return true }
func (s *clipSource) Release() error { return nil }

func (s *clipSource) ReadFrame(ctx context.Context) (*source.Frame, error) {
	if s.left == 0 {
		return nil, io.EOF
	}
	s.left--
	s.seq++
	return &source.Frame{Data: make([]byte, 4), Width: 2, Height: 2, Format: source.FormatGray, Sequence: s.seq}, nil
}

func init() {
	source.Register("clip", func(opts source.Options) (source.Backend, error) {
		return &clipBackend{frames: 5}, nil
	})
}

func writeResource(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunHelp(t *testing.T) {
	var out bytes.Buffer
	if code := run([]string{"--help"}, &out); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if !strings.Contains(out.String(), "-vocab") {
		t.Errorf("usage missing flags:\n%s", out.String())
	}
}

func TestRunBadFlags(t *testing.T) {
	tests := [][]string{
		{"--no-such-flag"},
		{"--max-frames", "many"},
		{"--max-frames", "-1"},
		{"--log-level", "chatty"},
		{"extra-arg"},
		{"--config", "/does/not/exist.yaml"},
	}
	for _, args := range tests {
		var out bytes.Buffer
		if code := run(args, &out); code != 1 {
			t.Errorf("run(%v) = %d, want 1", args, code)
		}
	}
}

func TestRunUnknownBackend(t *testing.T) {
	var out bytes.Buffer
	if code := run([]string{"--backend", "carrier-pigeon"}, &out); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestRunClip(t *testing.T) {
	vocab := writeResource(t, "voc.txt")
	settings := writeResource(t, "cam.yaml")
	traj := filepath.Join(t.TempDir(), "out", "trajectory.txt")

	var out bytes.Buffer
	code := run([]string{
		"--backend", "clip",
		"-c", "clip.mp4",
		"-v", vocab,
		"-s", settings,
		"--engine", "null",
		"--trajectory", traj,
		"--viewer=false",
	}, &out)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0\n%s", code, out.String())
	}
	if _, err := os.Stat(traj); err != nil {
		t.Errorf("trajectory file: %v", err)
	}
	if !strings.Contains(out.String(), "run finished") {
		t.Errorf("expected run summary in log:\n%s", out.String())
	}
}

func TestRunMissingVocabulary(t *testing.T) {
	settings := writeResource(t, "cam.yaml")

	var out bytes.Buffer
	code := run([]string{
		"--backend", "clip",
		"--cap", "clip.mp4",
		"--vocab", filepath.Join(t.TempDir(), "missing.txt"),
		"--settings", settings,
	}, &out)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("capture:\n  spec: file.mp4\nengine:\n  vocabulary: file-voc.txt\n"), 0644)

	var opts options
	fs := newFlagSet(&opts, io.Discard)
	if err := fs.Parse([]string{"--config", path, "-v", "flag-voc.txt", "--max-frames", "7"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(fs, &opts)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.Capture.Spec != "file.mp4" {
		t.Errorf("Capture.Spec = %q, want file value", cfg.Capture.Spec)
	}
	if cfg.Engine.Vocabulary != "flag-voc.txt" {
		t.Errorf("Vocabulary = %q, want flag value", cfg.Engine.Vocabulary)
	}
	if cfg.Loop.MaxFrames != 7 {
		t.Errorf("MaxFrames = %d, want 7", cfg.Loop.MaxFrames)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	var opts options
	fs := newFlagSet(&opts, io.Discard)
	fs.Parse([]string{"--max-frames", "-3"})

	if _, err := loadConfig(fs, &opts); !errors.Is(err, driver.ErrConfiguration) {
		t.Errorf("loadConfig error = %v, want ErrConfiguration", err)
	}
}

func TestRunListDevices(t *testing.T) {
	var out bytes.Buffer
	if code := run([]string{"--backend", "clip", "--list-devices"}, &out); code != 0 {
		t.Fatalf("exit code = %d, want 0\n%s", code, out.String())
	}
	if !strings.Contains(out.String(), "0: clip camera") {
		t.Errorf("listing missing from output:\n%s", out.String())
	}
}

func TestRunUnopenableInput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stand-ins need a POSIX shell")
	}
	// ffmpeg and ffprobe that reject every input
	bin := t.TempDir()
	for _, name := range []string{"ffmpeg", "ffprobe"} {
		if err := os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\nexit 1\n"), 0755); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	config := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(config, []byte("capture:\n  width: 640\n  height: 480\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	code := run([]string{
		"--config", config,
		"--backend", "ffmpeg",
		"--cap", "/nonexistent/clip.mp4",
		"-v", writeResource(t, "voc.txt"),
		"-s", writeResource(t, "cam.yaml"),
	}, &out)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1\n%s", code, out.String())
	}
	log := out.String()
	if !strings.Contains(log, source.ErrSourceResolution.Error()) {
		t.Errorf("expected source resolution error in log:\n%s", log)
	}
	if strings.Contains(log, "shutting down engine") {
		t.Errorf("engine was started for a source that never opened:\n%s", log)
	}
}

// An empty specifier means device 0 with no path fallback, from either entry point
func TestRunEmptySpecifier(t *testing.T) {
	vocab := writeResource(t, "voc.txt")
	settings := writeResource(t, "cam.yaml")
	config := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(config, []byte("capture:\n  spec: \"\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := map[string][]string{
		"flag":   {"--cap", ""},
		"config": {"--config", config},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			args = append(args, "--backend", "clip", "-v", vocab, "-s", settings)
			if code := run(args, &out); code != 1 {
				t.Errorf("exit code = %d, want 1\n%s", code, out.String())
			}
		})
	}

	// "0" may still fall back to a path named 0
	var out bytes.Buffer
	if code := run([]string{"--cap", "0", "--backend", "clip", "-v", vocab, "-s", settings}, &out); code != 0 {
		t.Errorf("--cap 0: exit code = %d, want 0\n%s", code, out.String())
	}
}
