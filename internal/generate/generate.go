// Package generate turns an uploaded study document into a validated lesson.
//
// An [Orchestrator] runs one request strictly in sequence: the upload is
// staged to a private temp file, its text is extracted by a document service,
// the text is wrapped in the lesson prompt and completed by an LLM, and the
// completion is checked by [lesson.Validate]. There is a single attempt per
// stage. The staged file is removed before Generate returns, whatever the
// outcome.
package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cognify-ai/cognify/internal/lesson"
	"github.com/cognify-ai/cognify/internal/observe"
	"github.com/cognify-ai/cognify/internal/resilience"
	"github.com/cognify-ai/cognify/pkg/provider/document"
	"github.com/cognify-ai/cognify/pkg/provider/llm"
)

// Failure kinds. Errors returned by Generate wrap exactly one of them.
var (
	// ErrNoFile means the request carried no uploaded content.
	ErrNoFile = errors.New("no file uploaded")

	// ErrTooLarge means the upload exceeded Config.MaxUploadBytes.
	ErrTooLarge = errors.New("upload too large")

	// ErrExtractionFailed means the document service returned no usable text.
	ErrExtractionFailed = errors.New("document analysis failed")

	// ErrUpstream marks a transport or protocol failure talking to the
	// document or completion service.
	ErrUpstream = errors.New("upstream service error")

	// ErrMalformedGeneration means the completion failed lesson validation.
	ErrMalformedGeneration = errors.New("malformed generation")
)

// UpstreamError carries the failing service and the underlying error. It
// matches [ErrUpstream] with errors.Is.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string { return e.Service + ": " + e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// PublicMessage returns the message shown to API clients for err.
func PublicMessage(err error) string {
	var up *UpstreamError
	switch {
	case errors.Is(err, ErrNoFile):
		return "No file uploaded."
	case errors.Is(err, ErrTooLarge):
		return "Uploaded file is too large."
	case errors.Is(err, ErrExtractionFailed):
		return "Document analysis failed."
	case errors.Is(err, ErrMalformedGeneration):
		return "AI-generated JSON is invalid or does not match the required format."
	case errors.As(err, &up):
		return up.Err.Error()
	case err == nil:
		return ""
	default:
		return "Internal server error."
	}
}

// resultLabel is the "result" attribute recorded for an outcome.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoFile):
		return "no_file"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	case errors.Is(err, ErrExtractionFailed):
		return "extraction_failed"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	case errors.Is(err, ErrMalformedGeneration):
		return "malformed_generation"
	default:
		return "internal_error"
	}
}

// DefaultMaxTokens is the completion budget for one lesson.
const DefaultMaxTokens = 16384

// Config tunes an [Orchestrator].
type Config struct {
	// UploadDir receives staged uploads. Empty means os.TempDir().
	UploadDir string

	// MaxUploadBytes caps a single upload. Zero means unlimited.
	MaxUploadBytes int64

	// MaxTokens caps the completion. Zero means [DefaultMaxTokens].
	MaxTokens int
}

// Upload is one document submitted for analysis.
type Upload struct {
	Reader   io.Reader
	Name     string
	MimeType string

	// Size is the declared length, or -1 when unknown. It is informational;
	// the staged byte count is authoritative.
	Size int64
}

// Result is a successful generation.
type Result struct {
	ExtractedText string         `json:"extractedText"`
	Lesson        *lesson.Lesson `json:"lesson"`
}

// Orchestrator runs lesson generation requests. It is safe for concurrent
// use; requests share nothing but the providers and breakers.
type Orchestrator struct {
	cfg  Config
	docs document.Extractor
	llm  llm.Provider

	docName, llmName       string
	docBreaker, llmBreaker *resilience.CircuitBreaker
	metrics                *observe.Metrics
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithMetrics records latency and outcome metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithBreakers guards the document and completion calls with the given
// breakers. Nil keeps the default for that service.
func WithBreakers(docs, completion *resilience.CircuitBreaker) Option {
	return func(o *Orchestrator) {
		if docs != nil {
			o.docBreaker = docs
		}
		if completion != nil {
			o.llmBreaker = completion
		}
	}
}

// WithProviderNames sets the provider labels used in metrics and spans.
func WithProviderNames(docs, completion string) Option {
	return func(o *Orchestrator) {
		o.docName, o.llmName = docs, completion
	}
}

// New returns an Orchestrator using docs for extraction and p for completion.
func New(cfg Config, docs document.Extractor, p llm.Provider, opts ...Option) *Orchestrator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	o := &Orchestrator{
		cfg:     cfg,
		docs:    docs,
		llm:     p,
		docName: "document",
		llmName: "completion",
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.docBreaker == nil {
		o.docBreaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "document"})
	}
	if o.llmBreaker == nil {
		o.llmBreaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "completion"})
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Generate analyses up and returns the extracted text and the lesson built
// from it.
func (o *Orchestrator) Generate(ctx context.Context, up Upload) (*Result, error) {
	ctx, span := observe.StartSpan(ctx, "generate.lesson",
		trace.WithAttributes(attribute.String("upload.name", up.Name)))
	defer span.End()

	start := time.Now()
	res, err := o.generate(ctx, up)
	result := resultLabel(err)

	o.metrics.GenerationDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("result", result)))
	o.metrics.RecordGenerationResult(ctx, result)
	span.SetAttributes(attribute.String("result", result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		return nil, err
	}
	span.SetAttributes(attribute.Int("lesson.steps", len(res.Lesson.Steps)))
	return res, nil
}

func (o *Orchestrator) generate(ctx context.Context, up Upload) (*Result, error) {
	if up.Reader == nil {
		return nil, ErrNoFile
	}
	staged, err := o.stage(up)
	if err != nil {
		return nil, err
	}
	defer staged.release()

	text, err := o.extract(ctx, staged, up)
	staged.release()
	if err != nil {
		return nil, err
	}

	raw, err := o.complete(ctx, lesson.Prompt(text))
	if err != nil {
		return nil, err
	}

	l, err := lesson.Validate(raw)
	if err != nil {
		observe.Logger(ctx).Debug("generate: completion rejected", "err", err, "completion_bytes", len(raw))
		return nil, fmt.Errorf("%w: %w", ErrMalformedGeneration, err)
	}
	return &Result{ExtractedText: text, Lesson: l}, nil
}

// stagedFile is an upload copied to disk. release closes and removes it and
// may be called any number of times.
type stagedFile struct {
	f    *os.File
	size int64
	once sync.Once
}

func (s *stagedFile) release() {
	s.once.Do(func() {
		name := s.f.Name()
		_ = s.f.Close()
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("generate: failed to remove staged upload", "path", name, "err", err)
		}
	})
}

func (o *Orchestrator) stage(up Upload) (*stagedFile, error) {
	dir := o.cfg.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	ext := filepath.Ext(filepath.Base(up.Name))
	if len(ext) > 16 {
		ext = ""
	}
	f, err := os.OpenFile(filepath.Join(dir, "cognify-"+uuid.NewString()+ext), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("generate: stage upload: %w", err)
	}
	s := &stagedFile{f: f}

	src := up.Reader
	if limit := o.cfg.MaxUploadBytes; limit > 0 {
		src = io.LimitReader(src, limit+1)
	}
	s.size, err = io.Copy(f, src)
	switch {
	case err != nil:
		s.release()
		return nil, fmt.Errorf("generate: stage upload: %w", err)
	case o.cfg.MaxUploadBytes > 0 && s.size > o.cfg.MaxUploadBytes:
		s.release()
		return nil, ErrTooLarge
	case s.size == 0:
		s.release()
		return nil, ErrNoFile
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		s.release()
		return nil, fmt.Errorf("generate: rewind staged upload: %w", err)
	}
	return s, nil
}

func (o *Orchestrator) extract(ctx context.Context, staged *stagedFile, up Upload) (string, error) {
	ctx, span := observe.StartSpan(ctx, "document.extract",
		trace.WithAttributes(
			attribute.String("provider", o.docName),
			attribute.Int64("upload.bytes", staged.size),
		))
	defer span.End()

	start := time.Now()
	res, err := resilience.Call(o.docBreaker, func() (*document.Result, error) {
		return o.docs.Extract(ctx, document.Source{
			Reader:   staged.f,
			Size:     staged.size,
			Name:     up.Name,
			MimeType: up.MimeType,
		})
	})
	o.metrics.DocumentDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", o.docName)))
	o.metrics.RecordProviderRequest(ctx, o.docName, "document", status(err))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extract")
		return "", &UpstreamError{Service: "document service", Err: err}
	}
	if res == nil || res.Text == "" {
		span.SetStatus(codes.Error, "empty text")
		return "", ErrExtractionFailed
	}
	span.SetAttributes(attribute.Int("document.pages", res.Pages), attribute.Int("document.chars", len(res.Text)))
	return res.Text, nil
}

func (o *Orchestrator) complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "llm.complete",
		trace.WithAttributes(attribute.String("provider", o.llmName), attribute.String("purpose", "lesson")))
	defer span.End()

	req := llm.CompletionRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens: o.llm.Capabilities().ClampMaxTokens(o.cfg.MaxTokens),
	}

	start := time.Now()
	resp, err := resilience.Call(o.llmBreaker, func() (*llm.CompletionResponse, error) {
		return o.llm.Complete(ctx, req)
	})
	o.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", o.llmName), attribute.String("purpose", "lesson")))
	o.metrics.RecordProviderRequest(ctx, o.llmName, "completion", status(err))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "complete")
		return "", &UpstreamError{Service: "completion service", Err: err}
	}
	if resp == nil {
		return "", nil
	}
	span.SetAttributes(
		attribute.String("finish_reason", resp.FinishReason),
		attribute.Int("usage.completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Content, nil
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "rejected"
	default:
		return "error"
	}
}
