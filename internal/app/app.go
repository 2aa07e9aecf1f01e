// Package app wires the Kojo subsystems into a running moderation bot.
//
// New builds the classifier, media sampler, policy, enforcement, audit log
// and voice session registry from the config, then attaches them to the
// Discord gateway. Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithVerdictStore,
// WithExtractor, etc.) and a fake [Discord]. When an option is not
// provided, New creates the real implementation from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/kojo/internal/cachestore"
	"github.com/MrWong99/kojo/internal/classify"
	"github.com/MrWong99/kojo/internal/config"
	"github.com/MrWong99/kojo/internal/discord"
	"github.com/MrWong99/kojo/internal/discord/voicecmd"
	"github.com/MrWong99/kojo/internal/dispatch"
	"github.com/MrWong99/kojo/internal/enforce"
	"github.com/MrWong99/kojo/internal/health"
	"github.com/MrWong99/kojo/internal/media"
	"github.com/MrWong99/kojo/internal/moderation"
	"github.com/MrWong99/kojo/internal/observe"
	"github.com/MrWong99/kojo/internal/voice"
	"github.com/MrWong99/kojo/pkg/audio"
)

// piiFuzzyThreshold catches transcription splits such as "snap chat" in the
// outage fallback without matching ordinary words.
const piiFuzzyThreshold = 0.93

// Discord is the part of the gateway the application drives.
// [*discord.Bot] implements it.
type Discord interface {
	Platform() audio.Platform
	Guilds() *discord.Guilds
	API() discord.API
	Router() *discord.CommandRouter
	Permissions() *discord.PermissionChecker
	Connected() bool
	Attach(ctx context.Context, h discord.Handlers)
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	discord   Discord

	metrics   *observe.Metrics
	logLevel  *slog.LevelVar
	extractor media.Extractor
	tempDir   string

	// Subsystems, initialised in New and torn down in Shutdown.
	store        cachestore.Store
	resolver     *moderation.Resolver
	classifier   *classify.Service
	video        *media.Aggregator
	moderator    *dispatch.Moderator
	orchestrator *dispatch.Orchestrator
	voice        *voice.Manager
	commands     *voicecmd.Filter
	health       *health.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithVerdictStore injects a verdict cache backend instead of creating one
// from config.
func WithVerdictStore(s cachestore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithExtractor replaces the ffmpeg frame extractor.
func WithExtractor(e media.Extractor) Option {
	return func(a *App) { a.extractor = e }
}

// WithMetrics records all metrics to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets [App.Reload] change the verbosity of the handler that
// reads lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithTempDir places downloaded videos and captured audio under dir.
func WithTempDir(dir string) Option {
	return func(a *App) { a.tempDir = dir }
}

// New creates an App by wiring all subsystems together and attaches them to
// dc. Goroutines started for gateway events inherit ctx. The gateway itself
// is opened by the caller afterwards.
func New(ctx context.Context, cfg *config.Config, providers *Providers, dc Discord, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, fmt.Errorf("app: a classifier provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		discord:   dc,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Policy ────────────────────────────────────────────────────────
	policy, err := cfg.Moderation.Build()
	if err != nil {
		return nil, fmt.Errorf("app: build policy: %w", err)
	}
	a.resolver = moderation.NewResolver(policy)

	// ── 2. Verdict cache ─────────────────────────────────────────────────
	if err := a.initCache(ctx); err != nil {
		return nil, fmt.Errorf("app: init cache: %w", err)
	}

	// ── 3. Classifier ────────────────────────────────────────────────────
	a.initClassifier()

	// ── 4. Video sampling ────────────────────────────────────────────────
	a.initMedia()

	// ── 5. Decision, enforcement, audit ──────────────────────────────────
	a.initModeration()

	// ── 6. Voice sessions ────────────────────────────────────────────────
	a.initVoice(ctx)

	// ── 7. Gateway handlers ──────────────────────────────────────────────
	a.attach(ctx)

	// ── 8. Readiness ─────────────────────────────────────────────────────
	a.initHealth()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initCache selects the verdict cache backend unless one was injected.
func (a *App) initCache(ctx context.Context) error {
	if a.store != nil || a.cfg.Cache.Disabled {
		return nil
	}
	if url := a.cfg.Cache.RedisURL; url != "" {
		rs, err := cachestore.NewRedisStore(ctx, url, a.cfg.Cache.TTL)
		if err != nil {
			return err
		}
		a.store = rs
		a.closers = append(a.closers, rs.Close)
		slog.Info("verdict cache", "backend", "redis", "ttl", a.cfg.Cache.TTL)
		return nil
	}
	a.store = cachestore.NewMemStore(a.cfg.Cache.Size, a.cfg.Cache.TTL)
	slog.Info("verdict cache", "backend", "memory", "size", a.cfg.Cache.Size, "ttl", a.cfg.Cache.TTL)
	return nil
}

func (a *App) initClassifier() {
	opts := []classify.Option{
		classify.WithRateLimit(a.cfg.Moderation.RequestsPerSecond, a.cfg.Moderation.Burst),
		classify.WithRedirectClient(classify.NewRedirectClient(a.cfg.Media.RedirectTimeout)),
		classify.WithPIIMatcher(moderation.NewPIIMatcher(moderation.WithFuzzyThreshold(piiFuzzyThreshold))),
		classify.WithMetrics(a.metrics),
		classify.WithProviderName(a.cfg.Providers.LLM.Name),
	}
	if a.store != nil {
		opts = append(opts, classify.WithCache(cachestore.NewVerdicts(a.store)))
	}
	a.classifier = classify.New(a.providers.LLM, opts...)
}

func (a *App) initMedia() {
	if a.extractor == nil {
		a.extractor = media.FFmpeg{
			FFmpegPath:  a.cfg.Media.FFmpegPath,
			FFprobePath: a.cfg.Media.FFprobePath,
		}
	}
	a.video = media.NewAggregator(a.classifier,
		media.WithExtractor(a.extractor),
		media.WithHTTPClient(media.NewDownloadClient()),
		media.WithMaxFrames(a.cfg.Media.MaxFrames),
		media.WithDownloadTimeout(a.cfg.Media.DownloadTimeout),
		media.WithMaxBytes(a.cfg.Media.MaxDownloadBytes),
		media.WithTempDir(a.tempDir),
		media.WithMetrics(a.metrics),
	)
}

func (a *App) initModeration() {
	var auditor dispatch.Auditor
	if ch := a.cfg.Discord.ModChannelID; ch != "" {
		auditor = discord.NewAuditLog(a.discord.API(), ch)
	}
	a.moderator = dispatch.NewModerator(dispatch.ModeratorConfig{
		Resolver: a.resolver,
		Executor: enforce.NewExecutor(),
		Platform: a.discord.Guilds(),
		Auditor:  auditor,
		Metrics:  a.metrics,
	})
	a.orchestrator = dispatch.NewOrchestrator(a.classifier, a.video, a.moderator)
}

// initVoice builds the session registry. Without a transcriber there is
// nothing to do with captured speech, so voice stays off.
func (a *App) initVoice(ctx context.Context) {
	if a.providers.STT == nil {
		return
	}
	guilds := a.discord.Guilds()
	a.voice = voice.NewManager(voice.Config{
		Platform: a.discord.Platform(),
		Capturer: &voice.Capturer{
			Transcriber: a.providers.STT,
			Classifier:  a.classifier,
			Members:     guilds,
			Moderator:   a.moderator,
			TempDir:     a.tempDir,
			Metrics:     a.metrics,
		},
		Target: voice.Target{
			ChannelID:   a.cfg.Voice.ChannelID,
			ChannelName: a.cfg.Voice.ChannelName,
		},
		Directory:     guilds,
		Debounce:      a.cfg.Voice.Debounce,
		Silence:       a.cfg.Voice.Silence,
		ManualSilence: a.cfg.Voice.ManualSilence,
		BaseContext:   ctx,
		Metrics:       a.metrics,
	})
	a.commands = voicecmd.New(a.cfg.Discord.CommandPrefix, a.voice)
	voicecmd.NewSlashCommands(ctx, a.discord.Router(), a.voice, guilds, a.discord.Permissions())

	slog.Info("voice moderation enabled",
		"channel_id", a.cfg.Voice.ChannelID,
		"channel_name", a.cfg.Voice.ChannelName,
		"prefix", a.cfg.Discord.CommandPrefix,
	)
}

func (a *App) attach(ctx context.Context) {
	h := discord.Handlers{Messages: a.orchestrator}
	if a.voice != nil {
		h.Voice = a.voice
		h.Commands = a.commands
	}
	a.discord.Attach(ctx, h)
}

func (a *App) initHealth() {
	checkers := []health.Checker{
		health.Gateway(a.discord.Connected),
		health.Breakers("classifier", a.providers.LLMBreakers),
	}
	if a.voice != nil {
		checkers = append(checkers, health.Breakers("transcriber", a.providers.STTBreakers))
	}
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		checkers = append(checkers, health.Checker{Name: "cache", Check: p.Ping})
	}
	a.health = health.New(checkers...)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Health returns the /healthz and /readyz handler.
func (a *App) Health() *health.Handler { return a.health }

// Voice returns the voice session registry, or nil when voice moderation is
// disabled.
func (a *App) Voice() *voice.Manager { return a.voice }

// Resolver returns the live decision policy.
func (a *App) Resolver() *moderation.Resolver { return a.resolver }

// Orchestrator returns the message pipeline.
func (a *App) Orchestrator() *dispatch.Orchestrator { return a.orchestrator }

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable differences between old and new. It is
// the callback handed to [config.NewWatcher]. Changes to other sections are
// logged and take effect after a restart.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.PolicyChanged {
		policy, err := new.Moderation.Build()
		if err != nil {
			slog.Warn("keeping previous policy", "err", err)
		} else {
			a.resolver.Swap(policy)
			slog.Info("moderation policy reloaded",
				"categories", d.ChangedCategories,
				"threshold_changed", d.ThresholdChanged,
			)
		}
	}
	if d.RateLimitChanged {
		a.classifier.SetRateLimit(new.Moderation.RequestsPerSecond, new.Moderation.Burst)
		slog.Info("classifier rate limit changed",
			"rps", new.Moderation.RequestsPerSecond,
			"burst", new.Moderation.Burst,
		)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed that need a restart", "sections", d.RestartRequired)
	}
}

// SlogLevel converts a config log level to a slog level.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown leaves every voice channel and then runs the closers in order.
// It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.voice != nil {
			a.voice.Close()
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
