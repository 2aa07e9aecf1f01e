// Package llm defines the Provider interface for the Large Language Model
// backends Kojo uses as its content classifier.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, Gemini, a
// local Ollama instance, ...) and exposes a single blocking completion call.
// The classifier never trusts what comes back: callers normalize the reply
// text themselves.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
	"errors"
)

// ErrVisionUnsupported is returned by providers whose backend cannot accept
// image inputs when a request carries images.
var ErrVisionUnsupported = errors.New("llm: provider does not support image inputs")

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. For classification this is a
	// single user message.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Nil
	// leaves the provider default in place; classification pins it to 0.
	Temperature *float64

	// MaxTokens caps the number of completion tokens. Zero means provider
	// default.
	MaxTokens int

	// SystemPrompt is sent ahead of Messages as a "system"-role message.
	SystemPrompt string
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Complete must return promptly when ctx is cancelled.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing what the underlying
	// model supports. It is constant for the lifetime of the Provider.
	Capabilities() ModelCapabilities
}

// Temperature returns a pointer to t for use in [CompletionRequest].
func Temperature(t float64) *float64 { return &t }
