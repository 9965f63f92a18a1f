package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracerProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

// captureDefaultLog points slog's default logger at a buffer for one test.
func captureDefaultLog(t *testing.T, wrap func(slog.Handler) slog.Handler) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	var h slog.Handler = slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	if wrap != nil {
		h = wrap(h)
	}
	orig := slog.Default()
	slog.SetDefault(slog.New(h))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestCorrelationID_EmptyByDefault(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}
}

func TestCorrelationID_ReturnsTraceID(t *testing.T) {
	tp, _ := newTestTracerProvider(t)
	ctx, span := tp.Tracer("test").Start(context.Background(), "test-span")
	defer span.End()

	cid := CorrelationID(ctx)
	if len(cid) != 32 {
		t.Fatalf("correlation ID length = %d, want 32", len(cid))
	}
	if strings.Trim(cid, "0123456789abcdef") != "" {
		t.Errorf("correlation ID %q is not lowercase hex", cid)
	}
}

func TestStartSpan_UsesGlobalProvider(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	ctx, span := StartSpan(context.Background(), "generate.extract")
	if CorrelationID(ctx) == "" {
		t.Error("StartSpan did not create a span with a trace ID")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "generate.extract" {
		t.Errorf("spans = %v", spans)
	}
}

func TestLogger_IncludesTraceID(t *testing.T) {
	tp, _ := newTestTracerProvider(t)
	buf := captureDefaultLog(t, nil)

	ctx, span := tp.Tracer("test").Start(context.Background(), "log-test")
	defer span.End()
	Logger(ctx).Info("test message")

	if !strings.Contains(buf.String(), "trace_id=") || !strings.Contains(buf.String(), "span_id=") {
		t.Errorf("log output missing trace attributes: %s", buf.String())
	}
}

func TestLogger_NoSpan(t *testing.T) {
	buf := captureDefaultLog(t, nil)
	Logger(context.Background()).Info("test message")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log output should not contain trace_id: %s", buf.String())
	}
}

func TestTraceHandler(t *testing.T) {
	tp, _ := newTestTracerProvider(t)
	buf := captureDefaultLog(t, func(h slog.Handler) slog.Handler { return NewTraceHandler(h) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "handler-test")
	defer span.End()

	slog.With("component", "api").InfoContext(ctx, "with span")
	out := buf.String()
	if !strings.Contains(out, "trace_id="+CorrelationID(ctx)) {
		t.Errorf("record missing trace_id: %s", out)
	}
	if !strings.Contains(out, "component=api") {
		t.Errorf("WithAttrs lost through wrapper: %s", out)
	}

	buf.Reset()
	slog.Info("without span")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("record without span carries trace_id: %s", buf.String())
	}
}

func TestLogger_TraceHandlerDefaultWritesIDsOnce(t *testing.T) {
	tp, _ := newTestTracerProvider(t)
	buf := captureDefaultLog(t, func(h slog.Handler) slog.Handler { return NewTraceHandler(h) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "once")
	defer span.End()

	Logger(ctx).With("session_id", "s1").Info("bound")
	out := buf.String()
	if n := strings.Count(out, "trace_id="); n != 1 {
		t.Errorf("trace_id written %d times, want 1: %s", n, out)
	}
	if !strings.Contains(out, "session_id=s1") {
		t.Errorf("With attrs lost: %s", out)
	}
}
