package media_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/kojo/internal/media"
	"github.com/MrWong99/kojo/internal/moderation"
)

// fakeClassifier returns image verdicts in call order and records calls.
type fakeClassifier struct {
	mu        sync.Mutex
	images    []moderation.Verdict
	imageURLs []string
	metaCalls int
}

func (f *fakeClassifier) Image(_ context.Context, url string) moderation.Verdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.imageURLs)
	f.imageURLs = append(f.imageURLs, url)
	if i < len(f.images) {
		return f.images[i]
	}
	return moderation.Normalize(`{"safe":true,"severity":"low","suggested_action":"allow","category":"none","confidence":0.9}`)
}

func (f *fakeClassifier) VideoMeta(context.Context, string, string) moderation.Verdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metaCalls++
	return moderation.Unavailable(moderation.RationaleVideoUnavailable)
}

// fakeExtractor writes placeholder JPEG files instead of running ffmpeg.
type fakeExtractor struct {
	mu       sync.Mutex
	duration float64
	probeErr error
	frameErr error
	fpsCount int
	offsets  []float64
	fpsCalls int
}

func (f *fakeExtractor) Duration(context.Context, string) (float64, error) {
	return f.duration, f.probeErr
}

func (f *fakeExtractor) FrameAt(_ context.Context, _ string, offset float64, out string) error {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	f.mu.Unlock()
	if f.frameErr != nil {
		return f.frameErr
	}
	return os.WriteFile(out, []byte("jpeg"), 0o600)
}

func (f *fakeExtractor) FramesEvery(_ context.Context, _ string, _, limit int, pattern string) error {
	f.mu.Lock()
	f.fpsCalls++
	f.mu.Unlock()
	for i := 1; i <= min(f.fpsCount, limit); i++ {
		if err := os.WriteFile(fmt.Sprintf(pattern, i), []byte("jpeg"), 0o600); err != nil {
			return err
		}
	}
	return nil
}

func videoServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("not really an mp4"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func assertEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("temp files left behind: %v", names)
	}
}

func verdict(severity, rationale string) moderation.Verdict {
	return moderation.NormalizeMap(map[string]any{
		"safe":      severity == "low",
		"severity":  severity,
		"rationale": rationale,
	})
}

func TestSeekPoints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		d    float64
		want []float64
	}{
		{d: 0, want: nil},
		{d: -1, want: nil},
		{d: 10, want: []float64{1, 5, 9}},
		// 0.9*d exceeds d-0.1 for short clips.
		{d: 0.5, want: []float64{0.05, 0.25, 0.4}},
		// d-0.1 is negative, clamp to 0.
		{d: 0.05, want: []float64{0, 0, 0}},
	}
	for _, tt := range tests {
		got := media.SeekPoints(tt.d)
		if len(got) != len(tt.want) {
			t.Fatalf("SeekPoints(%v) = %v, want %v", tt.d, got, tt.want)
		}
		for i := range got {
			if diff := got[i] - tt.want[i]; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("SeekPoints(%v)[%d] = %v, want %v", tt.d, i, got[i], tt.want[i])
			}
		}
	}
}

func TestWorst(t *testing.T) {
	t.Parallel()

	vs := []moderation.Verdict{
		verdict("low", "a"),
		verdict("high", "b"),
		verdict("critical", "c"),
		verdict("critical", "d"),
	}
	got := media.Worst(vs)
	if got.Severity != moderation.SeverityCritical {
		t.Errorf("Severity = %v, want critical", got.Severity)
	}
	if got.Rationale != "c_frames:4" {
		t.Errorf("Rationale = %q, want first critical with frame count", got.Rationale)
	}
	// Input is not modified.
	if vs[2].Rationale != "c" {
		t.Errorf("input rationale mutated to %q", vs[2].Rationale)
	}
}

func TestAggregate_SeeksWhenDurationKnown(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srv := videoServer(t, http.StatusOK)
	cls := &fakeClassifier{images: []moderation.Verdict{
		verdict("low", "fine"),
		verdict("high", "weapon"),
		verdict("medium", "blood"),
	}}
	ext := &fakeExtractor{duration: 20}
	a := media.NewAggregator(cls,
		media.WithExtractor(ext),
		media.WithHTTPClient(srv.Client()),
		media.WithTempDir(dir),
	)

	v := a.Aggregate(context.Background(), srv.URL+"/clip.webm", "clip.webm")
	if v.Severity != moderation.SeverityHigh || v.Rationale != "weapon_frames:3" {
		t.Errorf("Aggregate() = %+v", v)
	}
	if len(ext.offsets) != 3 {
		t.Errorf("FrameAt called %d times, want 3", len(ext.offsets))
	}
	if ext.fpsCalls != 0 {
		t.Errorf("fps extraction used although duration was known")
	}
	for _, u := range cls.imageURLs {
		if !strings.HasPrefix(u, "data:image/jpeg;base64,") {
			t.Errorf("frame sent as %q, want a data URL", u)
		}
	}
	if cls.metaCalls != 0 {
		t.Errorf("VideoMeta called %d times, want 0", cls.metaCalls)
	}
	assertEmpty(t, dir)
}

func TestAggregate_FPSFallbackCapsFrames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srv := videoServer(t, http.StatusOK)
	cls := &fakeClassifier{}
	ext := &fakeExtractor{probeErr: errors.New("no duration"), fpsCount: 9}
	a := media.NewAggregator(cls,
		media.WithExtractor(ext),
		media.WithHTTPClient(srv.Client()),
		media.WithTempDir(dir),
	)

	v := a.Aggregate(context.Background(), srv.URL+"/v", "")
	if ext.fpsCalls != 1 {
		t.Fatalf("FramesEvery called %d times, want 1", ext.fpsCalls)
	}
	if len(cls.imageURLs) != media.DefaultMaxFrames {
		t.Errorf("classified %d frames, want %d", len(cls.imageURLs), media.DefaultMaxFrames)
	}
	if v.Rationale != "normalized_frames:4" {
		t.Errorf("Rationale = %q", v.Rationale)
	}
	assertEmpty(t, dir)
}

func TestAggregate_FallsBackToMetadata(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		ext    *fakeExtractor
	}{
		{name: "download fails", status: http.StatusNotFound, ext: &fakeExtractor{duration: 10}},
		{name: "extraction fails", status: http.StatusOK, ext: &fakeExtractor{duration: 10, frameErr: errors.New("ffmpeg exited 1")}},
		{name: "no frames", status: http.StatusOK, ext: &fakeExtractor{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			srv := videoServer(t, tt.status)
			cls := &fakeClassifier{}
			a := media.NewAggregator(cls,
				media.WithExtractor(tt.ext),
				media.WithHTTPClient(srv.Client()),
				media.WithTempDir(dir),
			)

			v := a.Aggregate(context.Background(), srv.URL+"/v.mp4", "v.mp4")
			if cls.metaCalls != 1 {
				t.Errorf("VideoMeta called %d times, want 1", cls.metaCalls)
			}
			if v.Rationale != moderation.RationaleVideoUnavailable {
				t.Errorf("Aggregate() = %+v, want the metadata verdict", v)
			}
			assertEmpty(t, dir)
		})
	}
}

func TestAggregate_SizeCap(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srv := videoServer(t, http.StatusOK)
	cls := &fakeClassifier{}
	a := media.NewAggregator(cls,
		media.WithExtractor(&fakeExtractor{duration: 10}),
		media.WithHTTPClient(srv.Client()),
		media.WithTempDir(dir),
		media.WithMaxBytes(4),
	)

	a.Aggregate(context.Background(), srv.URL+"/big.mp4", "big.mp4")
	if cls.metaCalls != 1 || len(cls.imageURLs) != 0 {
		t.Errorf("oversized video: meta=%d frames=%d, want metadata only", cls.metaCalls, len(cls.imageURLs))
	}
	assertEmpty(t, dir)
}

func TestFFmpeg_MissingBinary(t *testing.T) {
	t.Parallel()

	f := media.FFmpeg{FFprobePath: filepath.Join(t.TempDir(), "no-such-ffprobe")}
	if _, err := f.Duration(context.Background(), "x.mp4"); err == nil {
		t.Error("Duration() with a missing binary returned nil error")
	}
}
