package resilience

import (
	"context"

	"github.com/MrWong99/kojo/pkg/provider/stt"
)

// TranscriberFallback implements [stt.Transcriber] with automatic failover
// across speech-to-text backends. Each backend has its own circuit breaker.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*TranscriberFallback)(nil)

// NewTranscriberFallback creates a [TranscriberFallback] with primary as the
// preferred backend.
func NewTranscriberFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional transcriber.
func (f *TranscriberFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Breakers exposes the per-backend breakers.
func (f *TranscriberFallback) Breakers() []*CircuitBreaker { return f.group.Breakers() }

// Transcribe sends the clip to the first healthy backend.
func (f *TranscriberFallback) Transcribe(ctx context.Context, wavPath string) (string, error) {
	return ExecuteWithResult(f.group, func(t stt.Transcriber) (string, error) {
		return t.Transcribe(ctx, wavPath)
	})
}
