// Package app wires the cognify subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds every subsystem from the
// config and the providers created by main, Run serves HTTP until the context
// is cancelled, and Shutdown releases what New acquired.
//
// For testing, inject telemetry and a listener via functional options
// (WithMetrics, WithListener, etc.).
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cognify-ai/cognify/internal/api"
	"github.com/cognify-ai/cognify/internal/chat"
	"github.com/cognify-ai/cognify/internal/config"
	"github.com/cognify-ai/cognify/internal/generate"
	"github.com/cognify-ai/cognify/internal/health"
	"github.com/cognify-ai/cognify/internal/observe"
	"github.com/cognify-ai/cognify/internal/resilience"
	"github.com/cognify-ai/cognify/internal/voice"
	"github.com/cognify-ai/cognify/pkg/provider/document"
	"github.com/cognify-ai/cognify/pkg/provider/llm"
	"github.com/cognify-ai/cognify/pkg/provider/realtime"
)

// DefaultTranscriptionModel transcribes the user's side of voice sessions
// unless the voice provider sets the transcription_model option.
const DefaultTranscriptionModel = "whisper-1"

// Providers holds one interface value per provider slot. Populated by main
// via the config registry. Realtime may be nil, which disables /voice.
type Providers struct {
	Document document.Extractor
	LLM      llm.Provider
	Realtime realtime.Provider
}

// App owns all subsystem lifetimes of the cognify server.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	level          *slog.LevelVar
	listener       net.Listener

	// Subsystems, initialised in New.
	docBreaker *resilience.CircuitBreaker
	llmBreaker *resilience.CircuitBreaker
	generator  *generate.Orchestrator
	chat       *chat.Service
	voice      *voice.Gateway
	health     *health.Handler
	handler    http.Handler
	server     *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics records all metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLevelVar lets config reloads change the log level through v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithListener makes Run serve on ln instead of listening on
// server.listen_addr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The document and
// completion providers are required.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Document == nil || providers.LLM == nil {
		return nil, errors.New("app: document and completion providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(SlogLevel(cfg.Server.LogLevel))
	}

	// ── 1. Circuit breakers ──────────────────────────────────────────────
	a.docBreaker = a.newBreaker("document")
	a.llmBreaker = a.newBreaker("completion")

	// ── 2. Lesson generation ─────────────────────────────────────────────
	a.generator = generate.New(
		generate.Config{
			UploadDir:      cfg.Server.UploadDir,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
			MaxTokens:      cfg.Generation.MaxTokens,
		},
		providers.Document,
		providers.LLM,
		generate.WithMetrics(a.metrics),
		generate.WithBreakers(a.docBreaker, a.llmBreaker),
		generate.WithProviderNames(cfg.Document.Name, cfg.Completion.Name),
	)

	apiOpts := []api.Option{}

	// ── 3. Companion chat ────────────────────────────────────────────────
	if cfg.Chat.IsEnabled() {
		a.chat = chat.New(providers.LLM, chatConfig(cfg.Chat),
			chat.WithBreaker(a.llmBreaker),
			chat.WithMetrics(a.metrics),
			chat.WithProviderName(cfg.Completion.Name),
		)
		apiOpts = append(apiOpts, api.WithChat(a.chat))
	}

	// ── 4. Voice gateway ─────────────────────────────────────────────────
	if providers.Realtime != nil {
		a.voice = voice.NewGateway(providers.Realtime, voiceConfig(cfg.Voice), persona(cfg.Voice),
			voice.WithMetrics(a.metrics))
		apiOpts = append(apiOpts, api.WithVoice(a.voice))
	}

	// ── 5. Health ────────────────────────────────────────────────────────
	uploadDir := cfg.Server.UploadDir
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	a.health = health.New(
		health.BreakerCheck(a.docBreaker),
		health.BreakerCheck(a.llmBreaker),
		health.DirCheck("upload_dir", uploadDir),
	)

	// ── 6. HTTP routes ───────────────────────────────────────────────────
	mux := http.NewServeMux()
	api.New(api.Config{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		CORSOrigins:    cfg.Server.CORSOrigins,
	}, a.generator, apiOpts...).Register(mux)
	a.health.Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	a.handler = api.CORS(cfg.Server.CORSOrigins)(observe.Middleware(a.metrics)(mux))
	a.server = &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: a.handler,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	// ── 7. Provider cleanup ──────────────────────────────────────────────
	for _, p := range []any{providers.Document, providers.LLM, providers.Realtime} {
		if c, ok := p.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	slog.Info("app initialised",
		"chat", a.chat != nil,
		"voice", a.voice != nil,
		"document", cfg.Document.Name,
		"completion", cfg.Completion.Name,
	)
	return a, nil
}

// newBreaker creates a breaker from the resilience config that reports its
// transitions to the log and to metrics.
func (a *App) newBreaker(name string) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         name,
		MaxFailures:  a.cfg.Resilience.MaxFailures,
		ResetTimeout: a.cfg.Resilience.ResetTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
			a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
		},
	})
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled, then drains in-flight requests for
// at most server.shutdown_timeout. It returns nil after a clean drain.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen: %w", err)
		}
	}
	slog.Info("http server listening", "addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.drain()
	})
	return g.Wait()
}

// drain marks the service unready and stops accepting requests.
func (a *App) drain() error {
	a.health.SetDraining(true)
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("app: drain: %w", err)
	}
	return nil
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies the settings of a reloaded config that take effect
// without a restart. It has the signature of a [config.Watcher] callback.
func (a *App) ApplyConfig(_, newCfg *config.Config, diff config.ConfigDiff) {
	if diff.LogLevelChanged {
		a.level.Set(SlogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.ChatChanged && a.chat != nil {
		a.chat.Update(chatConfig(newCfg.Chat))
		slog.Info("chat settings reloaded")
	}
	if diff.VoicePersonaChanged && a.voice != nil {
		a.voice.SetPersona(persona(newCfg.Voice))
		slog.Info("voice persona reloaded; applies to new sessions")
	}
	if diff.RestartRequired {
		slog.Warn("config change requires a restart to take effect")
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server if it is still running and then releases
// providers. It respects the context deadline: if ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.health.SetDraining(true)
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = err
			return
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

// ─── Helpers ─────────────────────────────────────────────────────────────────

// SlogLevel converts a config.LogLevel to slog.Level. Unknown values map to
// info.
func SlogLevel(level config.LogLevel) slog.Level {
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

func chatConfig(c config.ChatConfig) chat.Config {
	return chat.Config{
		SystemPrompt: c.SystemPrompt,
		HistoryLimit: c.HistoryLimit,
		MaxTokens:    c.MaxTokens,
		Temperature:  c.Temperature,
	}
}

func voiceConfig(v config.VoiceConfig) voice.Config {
	return voice.Config{
		ServiceRate: v.SampleRate,
		ClientRate:  v.ClientSampleRate,
		FrameSize:   v.FrameSize,
		BlockSize:   v.BlockSize,
	}
}

// persona converts the voice config to the session config of new voice
// sessions. Empty instructions fall back to the chat companion prompt.
func persona(v config.VoiceConfig) realtime.SessionConfig {
	instructions := v.Instructions
	if instructions == "" {
		instructions = chat.DefaultSystemPrompt
	}
	model := v.OptionString("transcription_model")
	if model == "" {
		model = DefaultTranscriptionModel
	}
	return realtime.SessionConfig{
		Instructions:       instructions,
		Voice:              v.Voice,
		Temperature:        v.Temperature,
		TranscriptionModel: model,
		ServerVAD:          v.UseServerVAD(),
	}
}
