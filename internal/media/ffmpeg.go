package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Extractor reads video metadata and writes still frames as JPEG files.
type Extractor interface {
	// Duration returns the container duration in seconds, or 0 when it is
	// unknown.
	Duration(ctx context.Context, path string) (float64, error)

	// FrameAt writes the frame at offset seconds into out.
	FrameAt(ctx context.Context, in string, offset float64, out string) error

	// FramesEvery writes up to limit frames sampled at fps frames per second.
	// pattern is an ffmpeg output pattern such as "dir/f%02d.jpg".
	FramesEvery(ctx context.Context, in string, fps, limit int, pattern string) error
}

// FFmpeg runs the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
}

var _ Extractor = FFmpeg{}

// Duration implements [Extractor].
func (f FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	out, err := run(ctx, orDefault(f.FFprobePath, "ffprobe"),
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(out)
	if s == "" || s == "N/A" {
		return 0, nil
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("media: parse duration %q: %w", s, err)
	}
	return d, nil
}

// FrameAt implements [Extractor].
func (f FFmpeg) FrameAt(ctx context.Context, in string, offset float64, out string) error {
	_, err := run(ctx, orDefault(f.FFmpegPath, "ffmpeg"),
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
		"-i", in,
		"-frames:v", "1",
		out,
	)
	return err
}

// FramesEvery implements [Extractor].
func (f FFmpeg) FramesEvery(ctx context.Context, in string, fps, limit int, pattern string) error {
	_, err := run(ctx, orDefault(f.FFmpegPath, "ffmpeg"),
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", in,
		"-vf", "fps="+strconv.Itoa(fps),
		"-frames:v", strconv.Itoa(limit),
		pattern,
	)
	return err
}

func run(ctx context.Context, bin string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("media: %s: %w", bin, err)
		}
		return "", fmt.Errorf("media: %s: %w: %s", bin, err, msg)
	}
	return stdout.String(), nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
