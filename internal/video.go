package internal

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"snapsift/internal/ffprobe"
)

// VideoProber reads container streams and tags.
type VideoProber interface {
	Probe(ctx context.Context, path string) (ffprobe.Result, error)
}

// VideoTranscoder performs the ffmpeg operations the pipeline needs. Overlay
// re-encodes video; RewriteMetadata only stream-copies.
type VideoTranscoder interface {
	Overlay(ctx context.Context, main, overlay, output string, metadata Tags) error
	RewriteMetadata(ctx context.Context, input, output string, metadata Tags) error
	ExtractAudio(ctx context.Context, input, output string) error
}

// FFprobe is the production VideoProber.
type FFprobe struct {
	binary string
}

func NewFFprobe(binary string) *FFprobe {
	return &FFprobe{binary: binary}
}

func (p *FFprobe) Probe(ctx context.Context, path string) (ffprobe.Result, error) {
	res, err := ffprobe.Inspect(ctx, p.binary, path)
	if err != nil {
		return ffprobe.Result{}, ExternalToolError(path, "ffprobe", err)
	}
	return res, nil
}

// FFmpeg is the production VideoTranscoder.
type FFmpeg struct {
	binary        string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

func NewFFmpeg(binary string) *FFmpeg {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (f *FFmpeg) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	f.commandRunner = runner
}

// Overlay draws overlay on top of main at (0,0). The main's audio is copied
// when it has any and its container tags are carried over before metadata
// is applied.
func (f *FFmpeg) Overlay(ctx context.Context, main, overlay, output string, metadata Tags) error {
	args := []string{
		"-y", "-loglevel", "error",
		"-i", main,
		"-i", overlay,
		"-filter_complex", "[0:v][1:v]overlay=0:0[v]",
		"-map", "[v]",
		"-map", "0:a?",
		"-c:a", "copy",
		"-map_metadata", "0",
	}
	args = append(args, metadataArgs(metadata)...)
	args = append(args, output)
	if err := f.run(ctx, args...); err != nil {
		return ExternalToolError(main, "ffmpeg", err)
	}
	return nil
}

// RewriteMetadata stream-copies input to output with the given tags set.
func (f *FFmpeg) RewriteMetadata(ctx context.Context, input, output string, metadata Tags) error {
	args := []string{
		"-y", "-loglevel", "error",
		"-i", input,
		"-map", "0",
		"-c", "copy",
		"-map_metadata", "0",
	}
	args = append(args, metadataArgs(metadata)...)
	args = append(args, output)
	if err := f.run(ctx, args...); err != nil {
		return ExternalToolError(input, "ffmpeg", err)
	}
	return nil
}

// ExtractAudio transcodes the audio track of input to MP3.
func (f *FFmpeg) ExtractAudio(ctx context.Context, input, output string) error {
	args := []string{
		"-y", "-loglevel", "error",
		"-i", input,
		"-vn",
		"-c:a", "libmp3lame",
		"-q:a", "2",
		"-map_metadata", "0",
		output,
	}
	if err := f.run(ctx, args...); err != nil {
		return ExternalToolError(input, "ffmpeg", err)
	}
	return nil
}

func metadataArgs(metadata Tags) []string {
	var args []string
	for _, k := range metadata.Keys() {
		args = append(args, "-metadata", fmt.Sprintf("%s=%s", k, metadata[k]))
	}
	return args
}

// run executes ffmpeg, using the custom runner if set.
func (f *FFmpeg) run(ctx context.Context, args ...string) error {
	if f.commandRunner != nil {
		return f.commandRunner(ctx, f.binary, args...)
	}
	cmd := exec.CommandContext(ctx, f.binary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", f.binary, err, strings.TrimSpace(string(output)))
	}
	return nil
}
