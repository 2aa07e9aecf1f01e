// Package openai provides an stt.Transcriber backed by the OpenAI audio
// transcription endpoint (whisper-1 by default).
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/kojo/pkg/provider/stt"
)

// DefaultModel is the transcription model used when none is configured.
const DefaultModel = oai.AudioModelWhisper1

var _ stt.Transcriber = (*Transcriber)(nil)

// Option configures a Transcriber.
type Option func(*Transcriber)

// WithModel overrides [DefaultModel].
func WithModel(model string) Option {
	return func(t *Transcriber) { t.model = oai.AudioModel(model) }
}

// WithLanguage sets an ISO-639-1 language hint.
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(t *Transcriber) { t.reqOpts = append(t.reqOpts, option.WithBaseURL(url)) }
}

// WithMaxRetries overrides the SDK's retry count.
func WithMaxRetries(n int) Option {
	return func(t *Transcriber) { t.reqOpts = append(t.reqOpts, option.WithMaxRetries(n)) }
}

// Transcriber implements stt.Transcriber using the OpenAI API.
type Transcriber struct {
	client   oai.Client
	model    oai.AudioModel
	language string
	reqOpts  []option.RequestOption
}

// New creates a Transcriber. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	t := &Transcriber{model: DefaultModel}
	for _, o := range opts {
		o(t)
	}
	t.client = oai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, t.reqOpts...)...)
	return t, nil
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return "", fmt.Errorf("openai stt: open %q: %w", wavPath, err)
	}
	defer f.Close()

	params := oai.AudioTranscriptionNewParams{
		File:  f,
		Model: t.model,
	}
	if t.language != "" {
		params.Language = param.NewOpt(t.language)
	}

	res, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return strings.TrimSpace(res.Text), nil
}
