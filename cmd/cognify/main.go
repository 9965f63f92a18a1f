// Command cognify is the main entry point for the Cognify study and wellbeing
// assistant server.
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

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/cognify-ai/cognify/internal/app"
	"github.com/cognify-ai/cognify/internal/config"
	"github.com/cognify-ai/cognify/internal/observe"
	"github.com/cognify-ai/cognify/pkg/provider/document"
	"github.com/cognify-ai/cognify/pkg/provider/document/azure"
	"github.com/cognify-ai/cognify/pkg/provider/document/gcp"
	"github.com/cognify-ai/cognify/pkg/provider/llm"
	"github.com/cognify-ai/cognify/pkg/provider/llm/anyllm"
	oaillm "github.com/cognify-ai/cognify/pkg/provider/llm/openai"
	"github.com/cognify-ai/cognify/pkg/provider/realtime"
	oairt "github.com/cognify-ai/cognify/pkg/provider/realtime/openai"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the configuration file when it changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "cognify: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "cognify: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(level))

	slog.Info("cognify starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Observe.ServiceName,
		ServiceVersion: version,
		TraceExporter:  cfg.Observe.TraceExporter,
		OTLPEndpoint:   cfg.Observe.OTLPEndpoint,
		OTLPInsecure:   cfg.Observe.OTLPInsecure,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithMetricsHandler(tel.MetricsHandler),
		app.WithLevelVar(level),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch {
		watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
		if err != nil {
			slog.Error("failed to watch config", "err", err)
			return 1
		}
		defer watcher.Stop()
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// ── Document ──────────────────────────────────────────────────────────────

	reg.RegisterDocument("azure", func(entry config.ProviderEntry) (document.Extractor, error) {
		poll, err := entry.OptionDuration("poll_interval")
		if err != nil {
			return nil, err
		}
		return azure.New(entry.BaseURL, entry.APIKey,
			azure.WithModel(entry.Model),
			azure.WithAPIVersion(entry.OptionString("api_version")),
			azure.WithPollInterval(poll),
		)
	})

	reg.RegisterDocument("gcp", func(entry config.ProviderEntry) (document.Extractor, error) {
		return gcp.New(ctx, gcp.Config{
			ProjectID:        entry.OptionString("project_id"),
			Location:         entry.OptionString("location"),
			ProcessorID:      entry.OptionString("processor_id"),
			ProcessorVersion: entry.OptionString("processor_version"),
			Credentials:      entry.OptionString("credentials"),
		})
	})

	// ── Completion ────────────────────────────────────────────────────────────

	reg.RegisterLLM("azure-openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		return oaillm.New(entry.APIKey, entry.Model,
			oaillm.WithAzure(entry.BaseURL, entry.OptionString("api_version")))
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptionString("organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining vendors share the same pattern: optional APIKey and
	// optional BaseURL.
	for _, providerName := range anyllm.Vendors() {
		if providerName == "openai" {
			continue
		}
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

	// ── Voice ─────────────────────────────────────────────────────────────────

	reg.RegisterRealtime("openai-realtime", func(entry config.ProviderEntry) (realtime.Provider, error) {
		return oairt.New(entry.APIKey,
			oairt.WithModel(entry.Model),
			oairt.WithBaseURL(entry.BaseURL),
		), nil
	})

	reg.RegisterRealtime("azure-realtime", func(entry config.ProviderEntry) (realtime.Provider, error) {
		if entry.BaseURL == "" {
			return nil, errors.New("azure-realtime: base_url is required")
		}
		return oairt.New(entry.APIKey,
			oairt.WithModel(entry.Model),
			oairt.WithAzure(entry.BaseURL, entry.OptionString("api_version")),
		), nil
	})

	for _, kind := range []string{"document", "completion", "voice"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates all providers named in cfg using the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	docs, err := reg.CreateDocument(cfg.Document)
	if err != nil {
		return nil, fmt.Errorf("create document provider %q: %w", cfg.Document.Name, err)
	}
	ps.Document = docs
	slog.Info("provider created", "kind", "document", "name", cfg.Document.Name)

	p, err := reg.CreateLLM(cfg.Completion)
	if err != nil {
		return nil, fmt.Errorf("create completion provider %q: %w", cfg.Completion.Name, err)
	}
	ps.LLM = p
	slog.Info("provider created", "kind", "completion", "name", cfg.Completion.Name)

	if cfg.Voice.Enabled() {
		rt, err := reg.CreateRealtime(cfg.Voice.ProviderEntry)
		if err != nil {
			return nil, fmt.Errorf("create voice provider %q: %w", cfg.Voice.Name, err)
		}
		ps.Realtime = rt
		slog.Info("provider created", "kind", "voice", "name", cfg.Voice.Name)
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Cognify · startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Document", cfg.Document.Name, cfg.Document.Model)
	printProvider("Completion", cfg.Completion.Name, cfg.Completion.Model)
	printProvider("Voice", cfg.Voice.Name, cfg.Voice.Model)
	chat := "(disabled)"
	if cfg.Chat.IsEnabled() {
		chat = "enabled"
	}
	fmt.Printf("║  Chat            : %-19s ║\n", chat)
	fmt.Printf("║  Upload limit    : %-19s ║\n", fmt.Sprintf("%d MiB", cfg.Server.MaxUploadBytes>>20))
	fmt.Printf("║  Trace exporter  : %-19s ║\n", cfg.Observe.TraceExporter)
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger returns a text logger on stderr whose records carry trace and
// span ids, filtered by level.
func newLogger(level *slog.LevelVar) *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(observe.NewTraceHandler(h))
}
