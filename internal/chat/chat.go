// Package chat implements the companion chat endpoint's conversation logic.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/cognify-ai/cognify/internal/observe"
	"github.com/cognify-ai/cognify/internal/resilience"
	"github.com/cognify-ai/cognify/pkg/provider/llm"
)

// DefaultSystemPrompt frames the assistant as a supportive companion.
const DefaultSystemPrompt = "You are a mental health companion AI, focused on providing support, understanding, and guidance. Respond with empathy and care."

// Defaults for [Config].
const (
	DefaultHistoryLimit = 10
	DefaultMaxTokens    = 800
	DefaultTemperature  = 0.7
	DefaultTopP         = 0.95
)

var (
	// ErrEmptyMessage is returned by Reply for a blank user message.
	ErrEmptyMessage = errors.New("chat: message must not be empty")

	// ErrNoReply is returned when the provider answers without a response.
	ErrNoReply = errors.New("chat: provider returned no response")
)

// Config tunes a [Service]. Zero fields take the defaults above.
type Config struct {
	SystemPrompt string

	// HistoryLimit is the number of most recent history messages sent along
	// with the new message.
	HistoryLimit int

	MaxTokens   int
	Temperature float64
	TopP        float64
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.SystemPrompt) == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	if c.TopP <= 0 {
		c.TopP = DefaultTopP
	}
	return c
}

// Service answers chat messages through an LLM. Its config can be swapped at
// runtime with [Service.Update]; in-flight replies keep the config they
// started with.
type Service struct {
	llm      llm.Provider
	provider string
	breaker  *resilience.CircuitBreaker
	metrics  *observe.Metrics

	mu  sync.RWMutex
	cfg Config
}

// Option configures a [Service].
type Option func(*Service)

// WithBreaker guards completions with cb.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(s *Service) { s.breaker = cb }
}

// WithMetrics records completion latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithProviderName sets the provider label used in metrics.
func WithProviderName(name string) Option {
	return func(s *Service) { s.provider = name }
}

// New returns a Service backed by p.
func New(p llm.Provider, cfg Config, opts ...Option) *Service {
	s := &Service{llm: p, cfg: cfg.withDefaults(), provider: "completion"}
	for _, o := range opts {
		o(s)
	}
	if s.breaker == nil {
		s.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "chat"})
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Update replaces the service config.
func (s *Service) Update(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

// Config returns the active config with defaults applied.
func (s *Service) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Reply sends message, preceded by the tail of history, and returns the
// assistant's answer.
func (s *Service) Reply(ctx context.Context, message string, history []llm.Message) (llm.Message, error) {
	if strings.TrimSpace(message) == "" {
		return llm.Message{}, ErrEmptyMessage
	}
	cfg := s.Config()

	ctx, span := observe.StartSpan(ctx, "chat.reply")
	defer span.End()

	msgs := append(Window(history, cfg.HistoryLimit), llm.Message{Role: llm.RoleUser, Content: message})
	req := llm.CompletionRequest{
		SystemPrompt: cfg.SystemPrompt,
		Messages:     msgs,
		MaxTokens:    s.llm.Capabilities().ClampMaxTokens(cfg.MaxTokens),
		Temperature:  cfg.Temperature,
		TopP:         cfg.TopP,
	}
	span.SetAttributes(attribute.Int("chat.history", len(msgs)-1))

	start := time.Now()
	resp, err := resilience.Call(s.breaker, func() (*llm.CompletionResponse, error) {
		return s.llm.Complete(ctx, req)
	})
	s.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", s.provider), attribute.String("purpose", "chat")))
	st := "ok"
	if err != nil {
		st = "error"
	}
	s.metrics.RecordProviderRequest(ctx, s.provider, "chat", st)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "complete")
		return llm.Message{}, err
	}
	if resp == nil {
		span.SetStatus(codes.Error, "no response")
		return llm.Message{}, ErrNoReply
	}
	return llm.Message{Role: llm.RoleAssistant, Content: resp.Content}, nil
}

// Window returns the last limit messages of history that have a user or
// assistant role and non-empty content. Client-supplied system messages are
// dropped.
func Window(history []llm.Message, limit int) []llm.Message {
	out := make([]llm.Message, 0, min(len(history), limit)+1)
	for _, m := range history {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
