package whisper_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/kojo/pkg/audio"
	"github.com/MrWong99/kojo/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

type inference struct {
	language string
	model    string
	format   audio.Format
	pcmBytes int
}

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText and records what it received.
func newMockServer(t *testing.T, responseText string, got *inference, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		if got != nil {
			if err := r.ParseMultipartForm(1 << 22); err != nil {
				t.Errorf("ParseMultipartForm: %v", err)
			}
			got.language = r.FormValue("language")
			got.model = r.FormValue("model")
			file, _, err := r.FormFile("file")
			if err != nil {
				t.Errorf("missing file part: %v", err)
			} else {
				pcm, f, err := audio.DecodeWAV(file)
				if err != nil {
					t.Errorf("uploaded file is not wav: %v", err)
				}
				got.format = f
				got.pcmBytes = len(pcm)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
}

// writeClip writes ms milliseconds of 48 kHz stereo PCM to a temp WAV.
func writeClip(t *testing.T, ms int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "utt.wav")
	pcm := make([]byte, 48*4*ms)
	for i := range pcm {
		pcm[i] = byte(i * 7)
	}
	if err := audio.WriteWAV(path, pcm, audio.Format{SampleRate: 48000, Channels: 2}); err != nil {
		t.Fatal(err)
	}
	return path
}

// ---- construction -----------------------------------------------------------

func TestNewServer_EmptyServerURL_ReturnsError(t *testing.T) {
	if _, err := whisper.NewServer(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

// ---- transcription ----------------------------------------------------------

func TestServerTranscribe_ResamplesAndSendsHints(t *testing.T) {
	var got inference
	srv := newMockServer(t, " what's your address ", &got, nil)
	defer srv.Close()

	s, err := whisper.NewServer(srv.URL+"/", whisper.WithLanguage("de"), whisper.WithModel("small"))
	if err != nil {
		t.Fatal(err)
	}
	text, err := s.Transcribe(context.Background(), writeClip(t, 100))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "what's your address" {
		t.Errorf("text = %q", text)
	}
	if got.language != "de" || got.model != "small" {
		t.Errorf("hints = %q/%q", got.language, got.model)
	}
	if got.format != (audio.Format{SampleRate: 16000, Channels: 1}) {
		t.Errorf("uploaded format = %+v, want 16 kHz mono", got.format)
	}
	// 100 ms at 16 kHz mono 16-bit.
	if got.pcmBytes != 3200 {
		t.Errorf("uploaded pcm = %d bytes, want 3200", got.pcmBytes)
	}
}

func TestServerTranscribe_EmptyClipSkipsServer(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, "unused", nil, &calls)
	defer srv.Close()

	s, _ := whisper.NewServer(srv.URL)
	text, err := s.Transcribe(context.Background(), writeClip(t, 0))
	if err != nil || text != "" {
		t.Errorf("got %q, %v", text, err)
	}
	if calls.Load() != 0 {
		t.Errorf("server called %d times, want 0", calls.Load())
	}
}

func TestServerTranscribe_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, _ := whisper.NewServer(srv.URL)
	if _, err := s.Transcribe(context.Background(), writeClip(t, 20)); err == nil {
		t.Fatal("expected error on HTTP 503")
	}
}

func TestServerTranscribe_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	s, _ := whisper.NewServer(srv.URL)
	if _, err := s.Transcribe(context.Background(), writeClip(t, 20)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestServerTranscribe_NotWAV(t *testing.T) {
	s, _ := whisper.NewServer("http://127.0.0.1:1")
	if _, err := s.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
