package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// ProbeResult holds media source information
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat holds format-level information
type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

// ProbeStream holds stream-level information
type ProbeStream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"` // video, audio
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	PixFmt       string `json:"pix_fmt,omitempty"`
	FrameRate    string `json:"r_frame_rate,omitempty"`
	AvgFrameRate string `json:"avg_frame_rate,omitempty"`
}

// Probe analyzes a capture input and returns metadata. format forces the
// demuxer (v4l2, avfoundation) and may be empty for files and URLs.
func (f *FFmpeg) Probe(ctx context.Context, input, format string) (*ProbeResult, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
	}
	if format != "" {
		args = append(args, "-f", format)
	}
	args = append(args, input)

	cmd := exec.CommandContext(ctx, f.probePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbe(output)
}

func parseProbe(output []byte) (*ProbeResult, error) {
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &result, nil
}

// VideoInfo returns simplified video information
type VideoInfo struct {
	Width     int
	Height    int
	Framerate float64
	Codec     string
	PixelFmt  string
}

// GetVideoInfo returns the geometry of the first video stream of input
func (f *FFmpeg) GetVideoInfo(ctx context.Context, input, format string) (*VideoInfo, error) {
	probe, err := f.Probe(ctx, input, format)
	if err != nil {
		return nil, err
	}
	return videoInfo(probe)
}

func videoInfo(probe *ProbeResult) (*VideoInfo, error) {
	for _, stream := range probe.Streams {
		if stream.CodecType != "video" {
			continue
		}
		info := &VideoInfo{
			Width:    stream.Width,
			Height:   stream.Height,
			Codec:    stream.CodecName,
			PixelFmt: stream.PixFmt,
		}

		// Parse framerate (format: "30/1" or "30000/1001")
		if stream.AvgFrameRate != "" {
			info.Framerate = parseFramerate(stream.AvgFrameRate)
		}
		if info.Framerate == 0 && stream.FrameRate != "" {
			info.Framerate = parseFramerate(stream.FrameRate)
		}

		if info.Width <= 0 || info.Height <= 0 {
			return nil, fmt.Errorf("video stream %d has no geometry", stream.Index)
		}
		return info, nil
	}
	return nil, fmt.Errorf("no video stream found")
}

// parseFramerate parses a framerate string like "30/1" or "30000/1001"
func parseFramerate(s string) float64 {
	var num, den int
	if n, _ := fmt.Sscanf(s, "%d/%d", &num, &den); n == 2 && den != 0 {
		return float64(num) / float64(den)
	}
	// Try parsing as plain number
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return 0
}

// Resolution returns resolution string like "1920x1080"
func (v *VideoInfo) Resolution() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}
