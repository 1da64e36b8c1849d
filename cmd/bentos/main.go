// Command bentos is the marine biodiversity analysis server: it extracts
// species sightings from expedition transcripts (or audio) and serves the
// results over HTTP, WebSocket, and MCP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/anavidal/bentos/internal/analyze"
	"github.com/anavidal/bentos/internal/app"
	"github.com/anavidal/bentos/internal/config"
	"github.com/anavidal/bentos/internal/observe"
	"github.com/anavidal/bentos/internal/resilience"
	"github.com/anavidal/bentos/pkg/provider/embeddings"
	ollamaembed "github.com/anavidal/bentos/pkg/provider/embeddings/ollama"
	oaembed "github.com/anavidal/bentos/pkg/provider/embeddings/openai"
	"github.com/anavidal/bentos/pkg/provider/llm"
	"github.com/anavidal/bentos/pkg/provider/llm/anyllm"
	oallm "github.com/anavidal/bentos/pkg/provider/llm/openai"
	"github.com/anavidal/bentos/pkg/provider/stt"
	"github.com/anavidal/bentos/pkg/provider/stt/whisper"
	"github.com/anavidal/bentos/pkg/types"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	transcriptPath := flag.String("transcript", "", "transcript file to analyze on startup")
	audioPath := flag.String("audio", "", "16 kHz mono WAV recording to transcribe and analyze on startup")
	outPath := flag.String("out", "", "write the analysis report as JSON to this file")
	printText := flag.Bool("text", false, "print the human-readable report to stdout after analysis")
	once := flag.Bool("once", false, "exit after the startup analysis instead of serving")
	mcpMode := flag.Bool("mcp", false, "serve MCP over stdio instead of HTTP")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "bentos: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "bentos: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("bentos starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName:    "bentos",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	if !*mcpMode {
		printStartupSummary(cfg)
	}

	application, err := app.New(ctx, cfg, providers, app.WithVersion(version))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level updated", "level", d.NewLogLevel)
		}
		application.ApplyConfig(d)
	})
	if err != nil {
		slog.Warn("config watcher unavailable, hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Startup analysis ──────────────────────────────────────────────────────
	if *transcriptPath != "" || *audioPath != "" {
		if err := runStartupAnalysis(ctx, application, *transcriptPath, *audioPath, *outPath, *printText); err != nil {
			slog.Error("startup analysis failed", "err", err)
			return 1
		}
	}

	if *once {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
			return 1
		}
		return 0
	}

	// ── Serve ─────────────────────────────────────────────────────────────────
	if *mcpMode {
		err = application.RunMCP(ctx)
	} else {
		slog.Info("server ready — press Ctrl+C to shut down")
		err = application.Run(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// runStartupAnalysis analyzes the transcript or audio file named on the
// command line and optionally writes the JSON report and the rendered text.
func runStartupAnalysis(ctx context.Context, application *app.App, transcriptPath, audioPath, outPath string, printText bool) error {
	var (
		report *types.Report
		err    error
	)
	switch {
	case transcriptPath != "":
		report, err = application.AnalyzeFile(ctx, transcriptPath)
	case audioPath != "":
		var samples []float32
		samples, err = whisper.LoadWAV(audioPath)
		if err != nil {
			return err
		}
		report, err = application.AnalyzeAudio(ctx, samples)
	}
	if err != nil {
		return err
	}

	if outPath != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		slog.Info("report written", "path", outPath, "species", len(report.Species))
	}
	if printText {
		fmt.Print(analyze.RenderText(report))
	}
	return nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with bentos. Used for startup logging.
var builtinProviders = map[string][]string{
	"llm":        {"auto", "groq", "gemini", "openai", "openai-native", "ollama", "deepseek", "mistral"},
	"embeddings": {"openai", "ollama"},
	"stt":        {"whisper"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// groq, gemini, openai, deepseek, and mistral all share the same pattern:
	// optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"groq", "gemini", "openai", "deepseek", "mistral",
	} {
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

	// openai-native talks to the OpenAI API directly through the official SDK
	// instead of going through any-llm.
	reg.RegisterLLM("openai-native", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return ollamaembed.New(entry.BaseURL, entry.Model)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if threads := optInt(entry.Options, "threads"); threads > 0 {
			opts = append(opts, whisper.WithThreads(uint(threads)))
		}
		return whisper.New(modelPath, opts...)
	})

	// Debug log of all registered providers.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		var (
			p   llm.Provider
			err error
		)
		if name == "auto" {
			p, err = buildAutoLLM(cfg.Providers.LLM, reg)
		} else {
			p, err = reg.CreateLLM(cfg.Providers.LLM)
		}
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "llm", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		} else {
			ps.LLM = p
			slog.Info("provider created", "kind", "llm", "name", p.Name())
		}
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "embeddings", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		} else {
			ps.Embeddings = p
			slog.Info("provider created", "kind", "embeddings", "name", name)
		}
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "stt", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		} else {
			ps.STT = p
			slog.Info("provider created", "kind", "stt", "name", name)
		}
	}

	return ps, nil
}

// Default models for the "auto" LLM mode.
const (
	autoGroqModel   = "llama-3.3-70b-versatile"
	autoGeminiModel = "gemini-2.0-flash"
)

// buildAutoLLM assembles the "auto" provider: Groq as primary with Gemini as
// fallback, each behind its own circuit breaker. API keys come from the
// config entry (APIKey / options.gemini_api_key) with the conventional
// environment variables as fallback.
func buildAutoLLM(entry config.ProviderEntry, reg *config.Registry) (llm.Provider, error) {
	groqEntry := entry
	groqEntry.Name = "groq"
	if groqEntry.APIKey == "" {
		groqEntry.APIKey = os.Getenv("GROQ_API_KEY")
	}
	if groqEntry.Model == "" {
		groqEntry.Model = autoGroqModel
	}
	primary, err := reg.CreateLLM(groqEntry)
	if err != nil {
		return nil, fmt.Errorf("auto: groq primary: %w", err)
	}

	fb := resilience.NewLLMFallback(primary, "groq", resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
		},
	})

	geminiEntry := config.ProviderEntry{
		Name:   "gemini",
		APIKey: optString(entry.Options, "gemini_api_key"),
		Model:  optString(entry.Options, "gemini_model"),
	}
	if geminiEntry.APIKey == "" {
		geminiEntry.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if geminiEntry.Model == "" {
		geminiEntry.Model = autoGeminiModel
	}
	secondary, err := reg.CreateLLM(geminiEntry)
	if err != nil {
		slog.Warn("auto: gemini fallback unavailable, running groq only", "err", err)
	} else {
		fb.AddFallback("gemini", secondary)
	}

	return fb, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          bentos — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	if cfg.Storage.PostgresDSN != "" {
		fmt.Printf("║  Storage         : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Storage         : %-19s ║\n", "(in-memory)")
	}
	if cfg.Thumbnails.VideoURL != "" {
		fmt.Printf("║  Thumbnails      : %-19s ║\n", "enabled")
	} else {
		fmt.Printf("║  Thumbnails      : %-19s ║\n", "(disabled)")
	}
	if cfg.Enrichment.Enabled {
		fmt.Printf("║  Enrichment      : %-19s ║\n", "enabled")
	} else {
		fmt.Printf("║  Enrichment      : %-19s ║\n", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the default logger along with the level variable the
// config watcher adjusts on hot reload.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
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

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optInt extracts an integer value from a provider Options map[string]any.
// Returns 0 if the map is nil, the key is absent, or the value is not an int.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	v, ok := opts[key]
	if !ok {
		return 0
	}
	n, ok := v.(int)
	if !ok {
		return 0
	}
	return n
}
