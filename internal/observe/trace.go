package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/cognify-ai/cognify"

// Tracer returns the service tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller must End it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the trace ID of the span in ctx, or "". It is the
// value echoed in the X-Correlation-ID response header.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger bound to ctx: records logged through it
// carry the trace_id and span_id of ctx's span even when logged without a
// context. Each id is written once, whether or not the default handler is
// already a [TraceHandler].
func Logger(ctx context.Context) *slog.Logger {
	h := slog.Default().Handler()
	if _, ok := h.(*TraceHandler); !ok {
		h = NewTraceHandler(h)
	}
	return slog.New(&boundHandler{Handler: h, ctx: ctx})
}

// boundHandler substitutes its captured context for record contexts that
// carry no span.
type boundHandler struct {
	slog.Handler
	ctx context.Context
}

func (h *boundHandler) Handle(ctx context.Context, r slog.Record) error {
	if !trace.SpanContextFromContext(ctx).IsValid() {
		ctx = h.ctx
	}
	return h.Handler.Handle(ctx, r)
}

func (h *boundHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &boundHandler{Handler: h.Handler.WithAttrs(attrs), ctx: h.ctx}
}

func (h *boundHandler) WithGroup(name string) slog.Handler {
	return &boundHandler{Handler: h.Handler.WithGroup(name), ctx: h.ctx}
}

// TraceHandler is a slog.Handler that adds trace_id and span_id to records
// whose context carries a span (slog.InfoContext and friends).
type TraceHandler struct {
	slog.Handler
}

// NewTraceHandler wraps h.
func NewTraceHandler(h slog.Handler) *TraceHandler {
	return &TraceHandler{Handler: h}
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}
