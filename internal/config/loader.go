package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"openai", "deepgram", "whisper", "whisper-native"},
}

// Environment variables read by [ApplyEnv].
const (
	EnvDiscordToken     = "DISCORD_TOKEN"
	EnvOpenAIKey        = "OPENAI_API_KEY"
	EnvModChannelID     = "MOD_CHANNEL_ID"
	EnvVoiceChannelID   = "VOICE_CHANNEL_ID"
	EnvVoiceChannelName = "VOICE_CHANNEL_NAME"
	EnvRedisURL         = "REDIS_URL"
	EnvLogLevel         = "LOG_LEVEL"
)

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. An empty path configures Kojo from the
// environment alone.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := &Config{}
		return finish(cfg, os.Getenv)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(data, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. The environment is not consulted, which keeps tests
// hermetic.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return parse(data, nil)
}

func parse(data []byte, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return finish(cfg, getenv)
}

func finish(cfg *Config, getenv func(string) string) (*Config, error) {
	if getenv != nil {
		ApplyEnv(cfg, getenv)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays the deployment environment onto cfg. Non-empty
// variables win over file values. OPENAI_API_KEY fills the key of every
// openai provider entry that has none and, when no classifier is
// configured at all, selects openai for both the classifier and the
// transcriber.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	override := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	override(&cfg.Discord.Token, EnvDiscordToken)
	override(&cfg.Discord.ModChannelID, EnvModChannelID)
	override(&cfg.Voice.ChannelID, EnvVoiceChannelID)
	override(&cfg.Voice.ChannelName, EnvVoiceChannelName)
	override(&cfg.Cache.RedisURL, EnvRedisURL)
	if v := getenv(EnvLogLevel); v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}

	key := getenv(EnvOpenAIKey)
	if key == "" {
		return
	}
	if cfg.Providers.LLM.Name == "" {
		cfg.Providers.LLM.Name = "openai"
	}
	if cfg.Providers.STT.Name == "" {
		cfg.Providers.STT.Name = "openai"
	}
	entries := []*ProviderEntry{&cfg.Providers.LLM, &cfg.Providers.STT}
	for i := range cfg.Providers.LLMFallbacks {
		entries = append(entries, &cfg.Providers.LLMFallbacks[i])
	}
	for i := range cfg.Providers.STTFallbacks {
		entries = append(entries, &cfg.Providers.STTFallbacks[i])
	}
	for _, e := range entries {
		if e.Name == "openai" && e.APIKey == "" {
			e.APIKey = key
		}
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Discord.Token == "" {
		errs = append(errs, fmt.Errorf("discord.token is required (or set %s)", EnvDiscordToken))
	}
	if cfg.Discord.ModChannelID == "" {
		slog.Warn("discord.mod_channel_id is empty; moderation events will not be posted")
	}

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, fmt.Errorf("providers.llm is required (or set %s)", EnvOpenAIKey))
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for i, e := range cfg.Providers.LLMFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", e.Name)
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	for i, e := range cfg.Providers.STTFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
		}
		validateProviderName("stt", e.Name)
	}
	if cfg.Voice.TargetConfigured() && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("voice: a target channel is configured but providers.stt is not"))
	}

	if cfg.Voice.Debounce < 0 {
		errs = append(errs, fmt.Errorf("voice.debounce %v must not be negative", cfg.Voice.Debounce))
	}
	if cfg.Voice.Silence < 0 || cfg.Voice.ManualSilence < 0 {
		errs = append(errs, errors.New("voice silence windows must not be negative"))
	}
	if cfg.Voice.MaxUtterance != 0 && cfg.Voice.MaxUtterance < cfg.Voice.Silence {
		errs = append(errs, fmt.Errorf("voice.max_utterance %v is shorter than voice.silence %v", cfg.Voice.MaxUtterance, cfg.Voice.Silence))
	}

	if _, err := cfg.Moderation.Build(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Moderation.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("moderation.requests_per_second %v must not be negative", cfg.Moderation.RequestsPerSecond))
	}

	if cfg.Media.MaxFrames < 0 || cfg.Media.MaxFrames > 16 {
		errs = append(errs, fmt.Errorf("media.max_frames %d is out of range [1, 16]", cfg.Media.MaxFrames))
	}
	if cfg.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl %v must not be negative", cfg.Cache.TTL))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
