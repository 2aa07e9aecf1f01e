// Command kojo is the entry point for the Kojo child-safety moderation bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/kojo/internal/app"
	"github.com/MrWong99/kojo/internal/config"
	"github.com/MrWong99/kojo/internal/discord"
	"github.com/MrWong99/kojo/internal/observe"
	"github.com/MrWong99/kojo/pkg/provider/llm"
	"github.com/MrWong99/kojo/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/kojo/pkg/provider/llm/openai"
	"github.com/MrWong99/kojo/pkg/provider/stt"
	"github.com/MrWong99/kojo/pkg/provider/stt/deepgram"
	oastt "github.com/MrWong99/kojo/pkg/provider/stt/openai"
	"github.com/MrWong99/kojo/pkg/provider/stt/whisper"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (empty: environment only)")
	envPath := flag.String("env", ".env", "dotenv file loaded before the configuration")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "kojo: load %s: %v\n", *envPath, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "kojo: config file %q not found; omit -config to run from environment variables only\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "kojo: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("kojo starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := app.BuildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Discord bot ───────────────────────────────────────────────────────────
	bot, err := discord.New(discord.Config{
		Token:           cfg.Discord.Token,
		GuildID:         cfg.Discord.GuildID,
		ModeratorRoleID: cfg.Discord.ModeratorRoleID,
		MaxUtterance:    cfg.Voice.MaxUtterance,
	})
	if err != nil {
		slog.Error("failed to create Discord bot", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers, bot,
		app.WithMetrics(metrics),
		app.WithLogLevel(logLevel),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	if *configPath != "" {
		w, err := config.NewWatcher(*configPath, application.Reload)
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	// ── Admin HTTP ────────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	application.Health().Register(mux)
	mux.Handle("GET /metrics", tel.MetricsHandler())
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics, "/healthz", "/readyz", "/metrics")(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("admin server error", "err", err)
			stop()
		}
	}()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	runErr := make(chan error, 1)
	go func() { runErr <- bot.Run(ctx) }()

	slog.Info("kojo ready; press Ctrl+C to shut down")

	exit := 0
	select {
	case <-ctx.Done():
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("discord bot error", "err", err)
			exit = 1
		}
		stop()
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	// Leave voice while the gateway is still up.
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := bot.Close(); err != nil {
		slog.Warn("discord bot close error", "err", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("admin server shutdown error", "err", err)
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}

	slog.Info("goodbye")
	return exit
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmProviders share the same pattern: optional APIKey + optional BaseURL.
var anyllmProviders = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if detail := optString(entry.Options, "image_detail"); detail != "" {
			opts = append(opts, oallm.WithImageDetail(detail))
		}
		if d, err := time.ParseDuration(optString(entry.Options, "timeout")); err == nil {
			opts = append(opts, oallm.WithTimeout(d))
		}
		model := entry.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return oallm.New(entry.APIKey, model, opts...)
	})

	for _, providerName := range anyllmProviders {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []oastt.Option
		if entry.Model != "" {
			opts = append(opts, oastt.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, oastt.WithLanguage(lang))
		}
		return oastt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		for _, w := range optStrings(entry.Options, "keywords") {
			opts = append(opts, deepgram.WithKeywords(deepgram.Keyword{Word: w, Boost: 2}))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.NewServer(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	llmNames, sttNames := reg.Names()
	slog.Debug("registered providers", "llm", llmNames, "stt", sttNames)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Kojo startup summary         ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Classifier", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	fmt.Printf("║  %-12s    : %-19d ║\n", "  fallbacks", len(cfg.Providers.LLMFallbacks))
	printProvider("Transcriber", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	fmt.Printf("║  %-12s    : %-19d ║\n", "  fallbacks", len(cfg.Providers.STTFallbacks))
	printValue("Guild", cfg.Discord.GuildID, "(global commands)")
	printValue("Mod channel", cfg.Discord.ModChannelID, "(audit disabled)")
	switch {
	case cfg.Voice.ChannelID != "":
		printValue("Voice target", cfg.Voice.ChannelID, "")
	case cfg.Voice.ChannelName != "":
		printValue("Voice target", "#"+cfg.Voice.ChannelName, "")
	default:
		printValue("Voice target", "", "(commands only)")
	}
	cache := "memory"
	switch {
	case cfg.Cache.Disabled:
		cache = "(disabled)"
	case cfg.Cache.RedisURL != "":
		cache = "redis"
	}
	printValue("Verdict cache", cache, "")
	printValue("Listen addr", cfg.Server.ListenAddr, "")
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value != "" && model != "" {
		value = name + " / " + model
	}
	printValue(kind, value, "(not configured)")
}

func printValue(label, value, fallback string) {
	if value == "" {
		value = fallback
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optStrings extracts a list of strings. YAML sequences decode as []any.
func optStrings(opts map[string]any, key string) []string {
	raw, _ := opts[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
