package resilience

import (
	"context"
	"fmt"

	"github.com/MrWong99/kojo/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across
// classifier backends. Requests that carry images are only routed to
// backends whose capabilities report vision support.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Breakers exposes the per-backend breakers.
func (f *LLMFallback) Breakers() []*CircuitBreaker { return f.group.Breakers() }

// Complete sends the request to the first healthy eligible provider.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var eligible func(llm.Provider) bool
	if hasImages(req) {
		eligible = func(p llm.Provider) bool { return p.Capabilities().SupportsVision }
	}
	resp, err := ExecuteWhere(f.group, eligible, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
	if err == ErrNoEligible {
		return nil, fmt.Errorf("resilience: %w", llm.ErrVisionUnsupported)
	}
	return resp, err
}

// Capabilities reports the primary's limits, with SupportsVision set if any
// backend can see images.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	if len(f.group.entries) == 0 {
		return llm.ModelCapabilities{}
	}
	caps := f.group.entries[0].value.Capabilities()
	for _, e := range f.group.entries[1:] {
		if e.value.Capabilities().SupportsVision {
			caps.SupportsVision = true
		}
	}
	return caps
}

func hasImages(req llm.CompletionRequest) bool {
	for _, m := range req.Messages {
		if len(m.Images) > 0 {
			return true
		}
	}
	return false
}
