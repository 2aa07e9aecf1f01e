// Package whisper provides whisper.cpp-backed speech-to-text transcribers.
//
// [Server] talks to a running whisper-server binary (POST /inference).
// [Native] links whisper.cpp through its CGO bindings and runs inference
// in-process. Both resample each utterance to 16 kHz mono before
// recognition, which is what whisper.cpp expects.
//
// Usage:
//
//	t, err := whisper.NewServer("http://localhost:8080", whisper.WithLanguage("en"))
//	text, err := t.Transcribe(ctx, "/tmp/utterance.wav")
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/kojo/pkg/audio"
	"github.com/MrWong99/kojo/pkg/provider/stt"
)

const (
	defaultLanguage = "en"
	targetRate      = 16000
)

// Compile-time assertion that Server implements stt.Transcriber.
var _ stt.Transcriber = (*Server)(nil)

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with, which is the default.
func WithModel(model string) Option {
	return func(s *Server) {
		s.model = model
	}
}

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(s *Server) {
		s.language = lang
	}
}

// WithHTTPClient replaces the default client (30 s timeout, no retries).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) {
		s.httpClient = c
	}
}

// Server implements stt.Transcriber backed by a whisper.cpp HTTP server.
type Server struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// NewServer creates a Server for the whisper.cpp HTTP server at serverURL
// (e.g., "http://localhost:8080").
func NewServer(serverURL string, opts ...Option) (*Server, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	s := &Server{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Transcribe implements stt.Transcriber.
func (s *Server) Transcribe(ctx context.Context, wavPath string) (string, error) {
	pcm, f, err := audio.ReadWAV(wavPath)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	if len(pcm) == 0 {
		return "", nil
	}
	wav := audio.EncodeWAV(audio.ToMono16k(pcm, f), audio.Format{SampleRate: targetRate, Channels: 1})
	return s.infer(ctx, wav)
}

// infer POSTs a WAV file to the /inference endpoint as multipart/form-data.
func (s *Server) infer(ctx context.Context, wav []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("whisper: write response_format field: %w", err)
	}
	if s.language != "" {
		if err := mw.WriteField("language", s.language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if s.model != "" {
		if err := mw.WriteField("model", s.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/inference", bytes.NewReader(body.Bytes()))
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}
