package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/kojo/internal/config"
	"github.com/MrWong99/kojo/internal/moderation"
	"github.com/MrWong99/kojo/pkg/provider/llm"
	llmmock "github.com/MrWong99/kojo/pkg/provider/llm/mock"
	"github.com/MrWong99/kojo/pkg/provider/stt"
	sttmock "github.com/MrWong99/kojo/pkg/provider/stt/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: info

discord:
  token: bot-token
  mod_channel_id: "111"
  moderator_role_id: "222"

voice:
  channel_name: General
  debounce: 1500ms
  silence: 900ms

providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  llm_fallbacks:
    - name: ollama
      base_url: http://localhost:11434
      model: llama3.1
  stt:
    name: whisper
    base_url: http://localhost:8081
    options:
      language: en

moderation:
  low_confidence_threshold: 0.6
  requests_per_second: 2
  policy:
    profanity:
      severity: medium
      action: delete

media:
  max_frames: 3

cache:
  redis_url: redis://localhost:6379/0
  ttl: 5m
`

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

// ── schema ───────────────────────────────────────────────────────────────────

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Discord.ModChannelID != "111" || cfg.Discord.ModeratorRoleID != "222" {
		t.Errorf("discord = %+v", cfg.Discord)
	}
	if cfg.Voice.ChannelName != "General" || cfg.Voice.Debounce != 1500*time.Millisecond {
		t.Errorf("voice = %+v", cfg.Voice)
	}
	if len(cfg.Providers.LLMFallbacks) != 1 || cfg.Providers.LLMFallbacks[0].Name != "ollama" {
		t.Errorf("llm_fallbacks = %+v", cfg.Providers.LLMFallbacks)
	}
	if cfg.Providers.STT.Options["language"] != "en" {
		t.Errorf("stt options = %v", cfg.Providers.STT.Options)
	}
	if cfg.Media.MaxFrames != 3 {
		t.Errorf("max_frames = %d, want 3", cfg.Media.MaxFrames)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("cache ttl = %v", cfg.Cache.TTL)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, `
discord:
  token: x
providers:
  llm:
    name: openai
`)
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"listen_addr", cfg.Server.ListenAddr, ":8080"},
		{"log_level", cfg.Server.LogLevel, config.LogInfo},
		{"command_prefix", cfg.Discord.CommandPrefix, "!"},
		{"debounce", cfg.Voice.Debounce, 1500 * time.Millisecond},
		{"silence", cfg.Voice.Silence, 900 * time.Millisecond},
		{"manual_silence", cfg.Voice.ManualSilence, 800 * time.Millisecond},
		{"max_utterance", cfg.Voice.MaxUtterance, 30 * time.Second},
		{"max_frames", cfg.Media.MaxFrames, 4},
		{"download_timeout", cfg.Media.DownloadTimeout, 20 * time.Second},
		{"redirect_timeout", cfg.Media.RedirectTimeout, 5 * time.Second},
		{"ffprobe", cfg.Media.FFprobePath, "ffprobe"},
		{"cache_ttl", cfg.Cache.TTL, 10 * time.Minute},
		{"cache_size", cfg.Cache.Size, 5000},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if cfg.Voice.TargetConfigured() {
		t.Error("TargetConfigured = true with no channel set")
	}
}

func TestModerationConfig_Build(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	p, err := cfg.Moderation.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := p.LowConfidenceThreshold(); got != 0.6 {
		t.Errorf("threshold = %v, want 0.6", got)
	}
	want := moderation.PolicyEntry{Severity: moderation.SeverityMedium, Action: moderation.ActionDelete}
	if got := p.Entry(moderation.CategoryProfanity); got != want {
		t.Errorf("profanity = %+v, want %+v", got, want)
	}
	// Untouched categories keep the built-in entry.
	if got := p.Entry(moderation.CategoryGrooming).Action; got != moderation.ActionBan {
		t.Errorf("grooming action = %q, want ban", got)
	}
}

// ── environment ──────────────────────────────────────────────────────────────

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Discord: config.DiscordConfig{Token: "file-token", ModChannelID: "1"},
		Voice:   config.VoiceConfig{ChannelName: "General"},
	}
	config.ApplyEnv(cfg, envMap(map[string]string{
		config.EnvDiscordToken:   "env-token",
		config.EnvVoiceChannelID: "999",
		config.EnvRedisURL:       "redis://cache:6379",
		config.EnvLogLevel:       "debug",
	}))

	if cfg.Discord.Token != "env-token" {
		t.Errorf("token = %q, want env-token", cfg.Discord.Token)
	}
	if cfg.Discord.ModChannelID != "1" {
		t.Errorf("mod channel overwritten by empty env: %q", cfg.Discord.ModChannelID)
	}
	if cfg.Voice.ChannelID != "999" || cfg.Voice.ChannelName != "General" {
		t.Errorf("voice = %+v", cfg.Voice)
	}
	if cfg.Cache.RedisURL != "redis://cache:6379" {
		t.Errorf("redis = %q", cfg.Cache.RedisURL)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log level = %q", cfg.Server.LogLevel)
	}
}

func TestApplyEnv_OpenAIKeySelectsProviders(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyEnv(cfg, envMap(map[string]string{config.EnvOpenAIKey: "sk-env"}))

	if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.APIKey != "sk-env" {
		t.Errorf("llm = %+v", cfg.Providers.LLM)
	}
	if cfg.Providers.STT.Name != "openai" || cfg.Providers.STT.APIKey != "sk-env" {
		t.Errorf("stt = %+v", cfg.Providers.STT)
	}
}

func TestApplyEnv_OpenAIKeyKeepsExplicitKeys(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM:          config.ProviderEntry{Name: "anthropic", APIKey: "ant"},
		LLMFallbacks: []config.ProviderEntry{{Name: "openai"}, {Name: "openai", APIKey: "own"}},
		STT:          config.ProviderEntry{Name: "deepgram"},
	}}
	config.ApplyEnv(cfg, envMap(map[string]string{config.EnvOpenAIKey: "sk-env"}))

	if cfg.Providers.LLM.APIKey != "ant" {
		t.Errorf("anthropic key changed to %q", cfg.Providers.LLM.APIKey)
	}
	if cfg.Providers.LLMFallbacks[0].APIKey != "sk-env" {
		t.Errorf("fallback[0] key = %q, want sk-env", cfg.Providers.LLMFallbacks[0].APIKey)
	}
	if cfg.Providers.LLMFallbacks[1].APIKey != "own" {
		t.Errorf("fallback[1] key = %q, want own", cfg.Providers.LLMFallbacks[1].APIKey)
	}
	if cfg.Providers.STT.APIKey != "" {
		t.Errorf("deepgram got the openai key")
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

func TestRegistry_CreateRegistered(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	want := &llmmock.Provider{}
	r.RegisterLLM("mock", func(e config.ProviderEntry) (llm.Provider, error) {
		if e.Model != "m1" {
			t.Errorf("factory got model %q", e.Model)
		}
		return want, nil
	})
	r.RegisterSTT("mock", func(config.ProviderEntry) (stt.Transcriber, error) {
		return &sttmock.Transcriber{Text: "hi"}, nil
	})

	p, err := r.CreateLLM(config.ProviderEntry{Name: "mock", Model: "m1"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p != want {
		t.Error("CreateLLM returned a different provider")
	}
	tr, err := r.CreateSTT(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if text, _ := tr.Transcribe(context.Background(), "/nonexistent.wav"); text != "hi" {
		t.Errorf("transcript = %q", text)
	}

	llmNames, sttNames := r.Names()
	if len(llmNames) != 1 || llmNames[0] != "mock" || len(sttNames) != 1 {
		t.Errorf("names = %v %v", llmNames, sttNames)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	if _, err := r.CreateLLM(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	boom := errors.New("missing api key")
	r.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) { return nil, boom })
	if _, err := r.CreateLLM(config.ProviderEntry{Name: "broken"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want factory error", err)
	}
}
