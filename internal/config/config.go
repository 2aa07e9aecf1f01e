// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for the Kojo moderation bot.
package config

import (
	"time"

	"github.com/MrWong99/kojo/internal/moderation"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Kojo. It is loaded from a
// YAML file using [Load] or [LoadFromReader]; every field can also be left
// out and filled from the environment (see [ApplyEnv]).
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Discord    DiscordConfig    `yaml:"discord"`
	Voice      VoiceConfig      `yaml:"voice"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Moderation ModerationConfig `yaml:"moderation"`
	Media      MediaConfig      `yaml:"media"`
	Cache      CacheConfig      `yaml:"cache"`
}

// ServerConfig holds the admin HTTP listener (health, readiness, metrics)
// and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the admin listener. Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`
}

// DiscordConfig holds the bot credentials and the channels it reports to.
type DiscordConfig struct {
	// Token is the bot token. Overridden by DISCORD_TOKEN.
	Token string `yaml:"token"`

	// GuildID restricts slash command registration to one guild. Empty
	// registers the commands globally.
	GuildID string `yaml:"guild_id"`

	// ModChannelID receives the audit embeds. Overridden by MOD_CHANNEL_ID.
	// Empty disables the audit log.
	ModChannelID string `yaml:"mod_channel_id"`

	// ModeratorRoleID may use /voice besides members with Manage Server.
	ModeratorRoleID string `yaml:"moderator_role_id"`

	// CommandPrefix starts text commands such as !joinvoice. Default "!".
	CommandPrefix string `yaml:"command_prefix"`
}

// VoiceConfig selects the monitored voice channel and tunes capture.
type VoiceConfig struct {
	// ChannelID is the voice channel to auto-join. Takes precedence over
	// ChannelName. Overridden by VOICE_CHANNEL_ID.
	ChannelID string `yaml:"channel_id"`

	// ChannelName matches a voice channel case-insensitively when ChannelID
	// is empty. Overridden by VOICE_CHANNEL_NAME.
	ChannelName string `yaml:"channel_name"`

	// Debounce is the per-speaker minimum gap between captures. Default 1.5s.
	Debounce time.Duration `yaml:"debounce"`

	// Silence ends an utterance captured in an auto-joined channel.
	// Default 900ms.
	Silence time.Duration `yaml:"silence"`

	// ManualSilence ends an utterance in a channel joined by command.
	// Default 800ms.
	ManualSilence time.Duration `yaml:"manual_silence"`

	// MaxUtterance caps a single capture. Default 30s.
	MaxUtterance time.Duration `yaml:"max_utterance"`
}

// TargetConfigured reports whether an auto-join target is set.
func (v VoiceConfig) TargetConfigured() bool {
	return v.ChannelID != "" || v.ChannelName != ""
}

// ProvidersConfig declares the classifier and transcriber chains. Each entry
// selects a named factory registered in the [Registry]; fallbacks are tried
// in order when the primary fails or its circuit breaker is open.
type ProvidersConfig struct {
	LLM          ProviderEntry   `yaml:"llm"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
	STT          ProviderEntry   `yaml:"stt"`
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider
// types.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g. "openai",
	// "deepgram").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider's API, if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values (e.g. "language", "keywords").
	Options map[string]any `yaml:"options"`
}

// ModerationConfig tunes the decision policy and the classifier client.
// The whole section is hot-reloadable.
type ModerationConfig struct {
	// LowConfidenceThreshold overrides the safe-but-unsure cut-off. Zero
	// keeps the built-in 0.55.
	LowConfidenceThreshold float64 `yaml:"low_confidence_threshold"`

	// Policy overrides individual categories of the built-in table.
	Policy map[moderation.Category]moderation.PolicyEntry `yaml:"policy"`

	// RequestsPerSecond limits classifier calls. Zero means unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the limiter's bucket size. Default 5.
	Burst int `yaml:"burst"`
}

// Build returns the [moderation.Policy] described by m.
func (m ModerationConfig) Build() (*moderation.Policy, error) {
	return moderation.NewPolicy(m.Policy, m.LowConfidenceThreshold)
}

// MediaConfig configures video frame sampling.
type MediaConfig struct {
	// FFmpegPath and FFprobePath locate the binaries. Defaults "ffmpeg" and
	// "ffprobe" (looked up on PATH).
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`

	// MaxFrames is the number of frames classified per video. Default 4.
	MaxFrames int `yaml:"max_frames"`

	// DownloadTimeout bounds the attachment download. Default 20s.
	DownloadTimeout time.Duration `yaml:"download_timeout"`

	// MaxDownloadBytes caps the attachment size. Default 100 MiB.
	MaxDownloadBytes int64 `yaml:"max_download_bytes"`

	// RedirectTimeout bounds link redirect resolution. Default 5s.
	RedirectTimeout time.Duration `yaml:"redirect_timeout"`
}

// CacheConfig configures the verdict cache.
type CacheConfig struct {
	// Disabled turns the cache off.
	Disabled bool `yaml:"disabled"`

	// RedisURL selects the shared Redis backend. Empty uses an in-process
	// LRU. Overridden by REDIS_URL.
	RedisURL string `yaml:"redis_url"`

	// TTL is the lifetime of a cached verdict. Default 10m.
	TTL time.Duration `yaml:"ttl"`

	// Size is the in-process LRU capacity. Default 5000.
	Size int `yaml:"size"`
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	setDefault(&c.Server.ListenAddr, ":8080")
	setDefault(&c.Server.LogLevel, LogInfo)
	setDefault(&c.Discord.CommandPrefix, "!")
	setDefault(&c.Voice.Debounce, 1500*time.Millisecond)
	setDefault(&c.Voice.Silence, 900*time.Millisecond)
	setDefault(&c.Voice.ManualSilence, 800*time.Millisecond)
	setDefault(&c.Voice.MaxUtterance, 30*time.Second)
	setDefault(&c.Moderation.Burst, 5)
	setDefault(&c.Media.FFmpegPath, "ffmpeg")
	setDefault(&c.Media.FFprobePath, "ffprobe")
	setDefault(&c.Media.MaxFrames, 4)
	setDefault(&c.Media.DownloadTimeout, 20*time.Second)
	setDefault(&c.Media.MaxDownloadBytes, 100<<20)
	setDefault(&c.Media.RedirectTimeout, 5*time.Second)
	setDefault(&c.Cache.TTL, 10*time.Minute)
	setDefault(&c.Cache.Size, 5000)
}

func setDefault[T comparable](dst *T, v T) {
	var zero T
	if *dst == zero {
		*dst = v
	}
}
