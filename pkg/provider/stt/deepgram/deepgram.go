// Package deepgram provides an stt.Transcriber backed by the Deepgram
// streaming WebSocket API. Each utterance is replayed over a fresh stream,
// closed with CloseStream, and the final results are joined.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/kojo/pkg/audio"
	"github.com/MrWong99/kojo/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// chunkDuration is the amount of audio sent per binary frame.
	chunkDuration = 100 * time.Millisecond
)

var _ stt.Transcriber = (*Transcriber)(nil)

// Keyword boosts recognition of an uncommon word.
type Keyword struct {
	Word  string
	Boost float64
}

// Option is a functional option for configuring the Transcriber.
type Option func(*Transcriber)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(t *Transcriber) {
		t.language = language
	}
}

// WithKeywords boosts platform names and slang that general models miss.
func WithKeywords(kws ...Keyword) Option {
	return func(t *Transcriber) {
		t.keywords = append(t.keywords, kws...)
	}
}

// WithEndpoint overrides the streaming endpoint (ws:// or wss://).
func WithEndpoint(endpoint string) Option {
	return func(t *Transcriber) {
		t.endpoint = endpoint
	}
}

// Transcriber implements stt.Transcriber backed by the Deepgram streaming API.
type Transcriber struct {
	apiKey   string
	endpoint string
	model    string
	language string
	keywords []Keyword
}

// New creates a new Deepgram Transcriber. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	t := &Transcriber{
		apiKey:   apiKey,
		endpoint: deepgramEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	pcm, f, err := audio.ReadWAV(wavPath)
	if err != nil {
		return "", fmt.Errorf("deepgram: %w", err)
	}
	if len(pcm) == 0 {
		return "", nil
	}

	wsURL, err := t.buildURL(f)
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+t.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return "", fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- t.send(ctx, conn, pcm, f)
	}()

	var finals []string
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return "", fmt.Errorf("deepgram: read: %w", err)
		}
		r, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		if r.final {
			finals = append(finals, r.text)
		}
	}
	if err := <-sendErr; err != nil {
		return "", err
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
	return stt.JoinSegments(finals), nil
}

// send streams pcm in fixed-size chunks and then asks Deepgram to flush and
// close the stream.
func (t *Transcriber) send(ctx context.Context, conn *websocket.Conn, pcm []byte, f audio.Format) error {
	chunk := f.BytesPerSecond() * int(chunkDuration/time.Millisecond) / 1000
	if chunk <= 0 {
		chunk = len(pcm)
	}
	for off := 0; off < len(pcm); off += chunk {
		end := min(off+chunk, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return fmt.Errorf("deepgram: write audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: close stream: %w", err)
	}
	return nil
}

// buildURL constructs the streaming endpoint URL for the clip's format.
func (t *Transcriber) buildURL(f audio.Format) (string, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", t.model)
	q.Set("language", t.language)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(f.SampleRate))
	q.Set("channels", strconv.Itoa(f.Channels))
	for _, kw := range t.keywords {
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Word, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type result struct {
	text       string
	final      bool
	confidence float64
}

// parseDeepgramResponse parses a raw Deepgram message. It returns false for
// anything that is not a Results event with at least one alternative.
func parseDeepgramResponse(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return result{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return result{}, false
	}
	alt := resp.Channel.Alternatives[0]
	return result{
		text:       alt.Transcript,
		final:      resp.IsFinal,
		confidence: alt.Confidence,
	}, true
}
