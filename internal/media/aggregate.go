// Package media classifies video attachments by sampling still frames.
//
// [Aggregator.Aggregate] downloads the video, extracts a handful of frames
// with ffmpeg, classifies each frame as an image and keeps the most severe
// verdict. Every failure along the way falls back to classifying the video
// from its URL and filename alone, so Aggregate always returns a verdict.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/kojo/internal/moderation"
	"github.com/MrWong99/kojo/internal/observe"
)

// Defaults used when the corresponding option is not given.
const (
	DefaultMaxFrames       = 4
	DefaultDownloadTimeout = 20 * time.Second
)

var (
	// ErrNoFrames is returned when extraction produced no usable frame.
	ErrNoFrames = errors.New("media: no frames extracted")

	// ErrTooLarge is returned when an attachment exceeds the download cap.
	ErrTooLarge = errors.New("media: attachment too large")
)

// Classifier is the subset of the classification service the aggregator
// needs.
type Classifier interface {
	Image(ctx context.Context, imageURL string) moderation.Verdict
	VideoMeta(ctx context.Context, videoURL, filename string) moderation.Verdict
}

// seekFractions are the relative positions sampled when the duration is
// known.
var seekFractions = []float64{0.1, 0.5, 0.9}

var jpegName = regexp.MustCompile(`(?i)\.jpe?g$`)

// Aggregator turns a video URL into a single verdict. It is safe for
// concurrent use; every call works in its own temporary files.
type Aggregator struct {
	classifier Classifier
	extractor  Extractor
	client     *http.Client
	maxFrames  int
	timeout    time.Duration
	maxBytes   int64
	tempDir    string
	metrics    *observe.Metrics
}

// Option configures an [Aggregator].
type Option func(*Aggregator)

// WithExtractor replaces the ffmpeg-backed extractor.
func WithExtractor(e Extractor) Option {
	return func(a *Aggregator) { a.extractor = e }
}

// WithHTTPClient replaces the download client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Aggregator) { a.client = c }
}

// WithMaxFrames sets how many frames are classified per video.
func WithMaxFrames(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxFrames = n
		}
	}
}

// WithDownloadTimeout bounds the attachment download.
func WithDownloadTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithMaxBytes caps the attachment size. Zero disables the cap.
func WithMaxBytes(n int64) Option {
	return func(a *Aggregator) { a.maxBytes = n }
}

// WithTempDir sets where the video and its frames are staged. Empty uses
// [os.TempDir].
func WithTempDir(dir string) Option {
	return func(a *Aggregator) { a.tempDir = dir }
}

// WithMetrics records analysis latency to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// NewAggregator returns an Aggregator that classifies frames with c.
func NewAggregator(c Classifier, opts ...Option) *Aggregator {
	a := &Aggregator{
		classifier: c,
		extractor:  FFmpeg{},
		maxFrames:  DefaultMaxFrames,
		timeout:    DefaultDownloadTimeout,
		metrics:    observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.client == nil {
		a.client = NewDownloadClient()
	}
	return a
}

// Aggregate classifies the video at url. filename supplies the staging file
// extension and is passed to the metadata fallback.
func (a *Aggregator) Aggregate(ctx context.Context, url, filename string) moderation.Verdict {
	ctx, span := observe.StartSpan(ctx, "media.aggregate")
	start := time.Now()

	v, err := a.fromFrames(ctx, url, filename)
	path := "frames"
	if err != nil {
		observe.Logger(ctx).Warn("media: frame analysis failed, using metadata", "url", url, "err", err)
		v = a.classifier.VideoMeta(ctx, url, filename)
		path = "metadata"
	}

	a.metrics.MediaDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("path", path)))
	observe.EndSpan(span, err)
	return v
}

func (a *Aggregator) fromFrames(ctx context.Context, url, filename string) (moderation.Verdict, error) {
	frameDir, err := os.MkdirTemp(a.tempDir, "kojo_frames_*")
	if err != nil {
		return moderation.Verdict{}, fmt.Errorf("media: frame dir: %w", err)
	}
	defer os.RemoveAll(frameDir)

	video, err := a.stage(ctx, url, filename)
	if video != "" {
		defer os.Remove(video)
	}
	if err != nil {
		return moderation.Verdict{}, err
	}

	if err := a.extract(ctx, video, frameDir); err != nil {
		return moderation.Verdict{}, err
	}

	frames, err := a.listFrames(frameDir)
	if err != nil {
		return moderation.Verdict{}, err
	}

	verdicts := make([]moderation.Verdict, 0, len(frames))
	for _, f := range frames {
		b, err := os.ReadFile(f)
		if err != nil {
			return moderation.Verdict{}, fmt.Errorf("media: read frame: %w", err)
		}
		dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(b)
		verdicts = append(verdicts, a.classifier.Image(ctx, dataURL))
	}
	return Worst(verdicts), nil
}

// stage downloads url into a fresh temp file and returns its path. The path
// is returned even on error when the file was created.
func (a *Aggregator) stage(ctx context.Context, url, filename string) (string, error) {
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".mp4"
	}
	f, err := os.CreateTemp(a.tempDir, "kojo_vid_*"+ext)
	if err != nil {
		return "", fmt.Errorf("media: stage: %w", err)
	}
	defer f.Close()

	dctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := download(dctx, a.client, url, f, a.maxBytes); err != nil {
		return f.Name(), err
	}
	return f.Name(), f.Close()
}

// extract samples frames at fixed fractions of the duration in parallel, or
// at 1 fps when the duration is unknown.
func (a *Aggregator) extract(ctx context.Context, video, dir string) error {
	d, err := a.extractor.Duration(ctx, video)
	if err != nil {
		observe.Logger(ctx).Debug("media: probe failed, sampling at 1 fps", "err", err)
		d = 0
	}

	points := SeekPoints(d)
	if len(points) == 0 {
		return a.extractor.FramesEvery(ctx, video, 1, a.maxFrames, filepath.Join(dir, "f%02d.jpg"))
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range points {
		out := filepath.Join(dir, fmt.Sprintf("f%d.jpg", i+1))
		g.Go(func() error {
			return a.extractor.FrameAt(gctx, video, t, out)
		})
	}
	return g.Wait()
}

// listFrames returns up to maxFrames JPEG paths from dir in name order.
func (a *Aggregator) listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("media: list frames: %w", err)
	}
	var frames []string
	for _, e := range entries {
		if e.IsDir() || !jpegName.MatchString(e.Name()) {
			continue
		}
		frames = append(frames, filepath.Join(dir, e.Name()))
		if len(frames) == a.maxFrames {
			break
		}
	}
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	return frames, nil
}

// SeekPoints returns the frame offsets sampled from a video of d seconds:
// 10%, 50% and 90% of d, each clamped to [0, d-0.1]. It returns nil when d
// is not positive.
func SeekPoints(d float64) []float64 {
	if d <= 0 {
		return nil
	}
	pts := make([]float64, len(seekFractions))
	for i, p := range seekFractions {
		pts[i] = max(0, min(d-0.1, d*p))
	}
	return pts
}

// Worst returns the verdict with the highest severity rank. Ties keep the
// earliest. The result's rationale is suffixed with the number of verdicts
// considered. Worst panics on an empty slice.
func Worst(vs []moderation.Verdict) moderation.Verdict {
	worst := vs[0]
	for _, v := range vs[1:] {
		if v.Severity.Rank() > worst.Severity.Rank() {
			worst = v
		}
	}
	rationale := worst.Rationale
	if rationale == "" {
		rationale = "frame_based"
	}
	worst.Rationale = fmt.Sprintf("%s_frames:%d", rationale, len(vs))
	return worst
}
