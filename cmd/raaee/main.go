// Command raaee is the Raa'ee backend: the /process_audio gateway, the
// question pipeline and the speech proxy.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/raaee/internal/app"
	"github.com/MrWong99/raaee/internal/config"
	"github.com/MrWong99/raaee/internal/observe"
	"github.com/MrWong99/raaee/internal/resilience"
	"github.com/MrWong99/raaee/pkg/provider/embeddings"
	oaembed "github.com/MrWong99/raaee/pkg/provider/embeddings/openai"
	"github.com/MrWong99/raaee/pkg/provider/llm"
	"github.com/MrWong99/raaee/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/raaee/pkg/provider/llm/openai"
	"github.com/MrWong99/raaee/pkg/provider/stt"
	oastt "github.com/MrWong99/raaee/pkg/provider/stt/openai"
	"github.com/MrWong99/raaee/pkg/provider/stt/whisper"
	"github.com/MrWong99/raaee/pkg/provider/tts"
	"github.com/MrWong99/raaee/pkg/provider/tts/elevenlabs"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// ollamaBaseURL is the OpenAI-compatible endpoint of a local Ollama server.
const ollamaBaseURL = "http://localhost:11434/v1"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "raaee: load %s: %v\n", *envPath, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "raaee: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "raaee: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("raaee starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "raaee",
		ServiceVersion: version,
		Environment:    cfg.Server.Environment,
		SampleRatio:    cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	// Created after InitProvider so the instruments bind to the Prometheus
	// exporter.
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	if missing := reg.Missing(cfg.Providers); len(missing) > 0 {
		slog.Warn("configured providers have no implementation and will be skipped", "providers", missing)
	}

	providers, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(metrics),
		app.WithVersion(version),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	exit := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// groq and openai go through the OpenAI SDK directly; groq only differs
	// in its default base URL.
	reg.LLM.Register("groq", func(entry config.ProviderEntry) (llm.Provider, error) {
		base := entry.BaseURL
		if base == "" {
			base = oallm.GroqBaseURL
		}
		return oallm.New(entry.APIKey, entry.Model, oallm.WithBaseURL(base))
	})
	reg.LLM.Register("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptString("organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining backends share the same pattern: optional APIKey +
	// optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "llamacpp", "llamafile", "ollama",
	} {
		reg.LLM.Register(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
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

	sttFactory := func(defaultBase string) func(config.ProviderEntry) (stt.Provider, error) {
		return func(entry config.ProviderEntry) (stt.Provider, error) {
			base := entry.BaseURL
			if base == "" {
				base = defaultBase
			}
			var opts []oastt.Option
			if base != "" {
				opts = append(opts, oastt.WithBaseURL(base))
			}
			if lang := entry.OptString("language"); lang != "" {
				opts = append(opts, oastt.WithLanguage(lang))
			}
			return oastt.New(entry.APIKey, entry.Model, opts...)
		}
	}
	reg.STT.Register("groq", sttFactory(oastt.GroqBaseURL))
	reg.STT.Register("openai", sttFactory(""))

	reg.STT.Register("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.TTS.Register("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := entry.OptString("output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	embedFactory := func(defaultBase string) func(config.ProviderEntry) (embeddings.Provider, error) {
		return func(entry config.ProviderEntry) (embeddings.Provider, error) {
			base := entry.BaseURL
			if base == "" {
				base = defaultBase
			}
			var opts []oaembed.Option
			if base != "" {
				opts = append(opts, oaembed.WithBaseURL(base))
			}
			if n := entry.OptInt("dimensions"); n > 0 {
				opts = append(opts, oaembed.WithDimensions(n))
			}
			return oaembed.New(entry.APIKey, entry.Model, opts...)
		}
	}
	reg.Embeddings.Register("openai", embedFactory(""))
	reg.Embeddings.Register("ollama", embedFactory(ollamaBaseURL))

	slog.Debug("registered providers",
		"llm", reg.LLM.Names(),
		"stt", reg.STT.Names(),
		"tts", reg.TTS.Names(),
		"embeddings", reg.Embeddings.Names(),
	)
}

// breakerConfig is the circuit breaker tuning shared by every fallback group.
// Transitions are logged and counted per provider.
func breakerConfig(kind string, metrics *observe.Metrics) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		MaxFailures:  3,
		ResetTimeout: 30 * time.Second,
		HalfOpenMax:  1,
		OnStateChange: func(name string, from, to resilience.State) {
			level := slog.LevelInfo
			if to == resilience.StateOpen {
				level = slog.LevelWarn
			}
			slog.Log(context.Background(), level, "circuit breaker state changed",
				"kind", kind, "provider", name, "from", from.String(), "to", to.String())
			metrics.RecordBreakerTransition(context.Background(), kind, name, to.String())
		},
	}
}

// buildOne creates the provider for entry and, when entry lists fallbacks,
// wraps it in a fallback group built by group. A nil result with a nil error
// means the slot is not configured.
func buildOne[T any](kind string, entry config.ProviderEntry,
	create func(config.ProviderEntry) (T, error),
	group func(primary T, name string) interface{ AddFallback(string, T) },
) (T, error) {
	var zero T
	if entry.Name == "" {
		return zero, nil
	}
	p, err := create(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name)
	if len(entry.Fallbacks) == 0 || group == nil {
		return p, nil
	}

	g := group(p, entry.Name)
	for _, fb := range entry.Fallbacks {
		fp, err := create(fb)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			continue
		}
		if err != nil {
			return zero, fmt.Errorf("create %s fallback %q: %w", kind, fb.Name, err)
		}
		g.AddFallback(fb.Name, fp)
		slog.Info("fallback provider added", "kind", kind, "name", fb.Name)
	}
	return g.(T), nil
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, error) {
	ps := &app.Providers{}
	var err error

	ps.LLM, err = buildOne("llm", cfg.Providers.LLM, reg.LLM.Create,
		func(p llm.Provider, name string) interface{ AddFallback(string, llm.Provider) } {
			return resilience.NewLLMFallback(p, name, breakerConfig("llm", metrics))
		})
	if err != nil {
		return nil, err
	}

	ps.STT, err = buildOne("stt", cfg.Providers.STT, reg.STT.Create,
		func(p stt.Provider, name string) interface{ AddFallback(string, stt.Provider) } {
			return resilience.NewSTTFallback(p, name, breakerConfig("stt", metrics))
		})
	if err != nil {
		return nil, err
	}

	ps.TTS, err = buildOne("tts", cfg.Providers.TTS, reg.TTS.Create,
		func(p tts.Provider, name string) interface{ AddFallback(string, tts.Provider) } {
			return resilience.NewTTSFallback(p, name, breakerConfig("tts", metrics))
		})
	if err != nil {
		return nil, err
	}

	ps.Embeddings, err = buildOne("embeddings", cfg.Providers.Embeddings, reg.Embeddings.Create, nil)
	if err != nil {
		return nil, err
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Raa'ee, startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM)
	printProvider("STT", cfg.Providers.STT)
	printProvider("TTS", cfg.Providers.TTS)
	printProvider("Embeddings", cfg.Providers.Embeddings)
	printRow("Knowledge", cfg.Knowledge.Path)
	printRow("Journal", onOff(cfg.Storage.PostgresDSN != "", "postgres", "memory"))
	printRow("Archive", onOff(cfg.Archive.Endpoint != "", cfg.Archive.Bucket, "(disabled)"))
	printRow("MCP", onOff(cfg.MCP.Enabled, cfg.MCP.Path, "(disabled)"))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind string, entry config.ProviderEntry) {
	value := entry.Name
	switch {
	case value == "":
		value = "(not configured)"
	case entry.Model != "":
		value = entry.Name + " / " + entry.Model
	}
	if n := len(entry.Fallbacks); n > 0 {
		value += fmt.Sprintf(" +%d", n)
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

func onOff(on bool, yes, no string) string {
	if on {
		return yes
	}
	return no
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
