package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/kojo/internal/config"
	"github.com/MrWong99/kojo/internal/observe"
	"github.com/MrWong99/kojo/internal/resilience"
	"github.com/MrWong99/kojo/pkg/provider/llm"
	"github.com/MrWong99/kojo/pkg/provider/stt"
)

// Providers holds the classifier and transcriber chains. Populated by
// [BuildProviders] from the config registry.
type Providers struct {
	// LLM is the classifier backend chain. Required.
	LLM llm.Provider

	// STT is the transcriber chain. Nil disables voice moderation.
	STT stt.Transcriber

	// LLMBreakers and STTBreakers expose the per-backend circuit breakers
	// for readiness reporting.
	LLMBreakers []*resilience.CircuitBreaker
	STTBreakers []*resilience.CircuitBreaker
}

// BuildProviders instantiates the provider chains named in cfg. Every
// backend gets its own circuit breaker; fallbacks are tried in config order.
// Breaker transitions are logged and counted in m.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	fb := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("provider circuit breaker changed state", "name", name, "from", from, "to", to)
				m.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	}

	ps := &Providers{}

	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	chain := resilience.NewLLMFallback(primary, "llm/"+cfg.Providers.LLM.Name, fb)
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)
	for i, e := range cfg.Providers.LLMFallbacks {
		p, err := reg.CreateLLM(e)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %d %q: %w", i, e.Name, err)
		}
		chain.AddFallback(fmt.Sprintf("llm/%s#%d", e.Name, i+1), p)
		slog.Info("provider created", "kind", "llm", "name", e.Name, "fallback", i+1)
	}
	ps.LLM = chain
	ps.LLMBreakers = chain.Breakers()

	if cfg.Providers.STT.Name == "" {
		slog.Warn("no transcriber configured; voice moderation is disabled")
		return ps, nil
	}
	first, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	tchain := resilience.NewTranscriberFallback(first, "stt/"+cfg.Providers.STT.Name, fb)
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name, "model", cfg.Providers.STT.Model)
	for i, e := range cfg.Providers.STTFallbacks {
		t, err := reg.CreateSTT(e)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %d %q: %w", i, e.Name, err)
		}
		tchain.AddFallback(fmt.Sprintf("stt/%s#%d", e.Name, i+1), t)
		slog.Info("provider created", "kind", "stt", "name", e.Name, "fallback", i+1)
	}
	ps.STT = tchain
	ps.STTBreakers = tchain.Breakers()

	return ps, nil
}
