package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type mwFixture struct {
	reader *sdkmetric.ManualReader
	spans  *tracetest.InMemoryExporter
	serve  http.Handler
}

// newMWFixture routes /lessons/{id} (201) and /boom (500) through the
// middleware with in-memory metric and span collection. It swaps the global
// tracer provider, so callers must not run in parallel.
func newMWFixture(t *testing.T) *mwFixture {
	t.Helper()
	f := &mwFixture{
		reader: sdkmetric.NewManualReader(),
		spans:  tracetest.NewInMemoryExporter(),
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(f.reader))
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(f.spans))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /lessons/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /boom", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	f.serve = Middleware(m)(mux)
	return f
}

func (f *mwFixture) do(method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.serve.ServeHTTP(rec, req)
	return rec
}

func (f *mwFixture) durationPoint(t *testing.T) metricdata.HistogramDataPoint[float64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := f.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "cognify.http.request.duration")
	if met == nil {
		t.Fatal("duration histogram not recorded")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}
	return hist.DataPoints[0]
}

func TestMiddleware_RouteLabels(t *testing.T) {
	tests := []struct {
		name, method, path string
		wantStatus         int
		wantRoute          string
		wantSpan           string
	}{
		{"pattern", http.MethodPost, "/lessons/42", http.StatusCreated, "POST /lessons/{id}", "HTTP POST /lessons/{id}"},
		{"server error", http.MethodGet, "/boom", http.StatusInternalServerError, "GET /boom", "HTTP GET /boom"},
		{"unmatched", http.MethodGet, "/nope/123", http.StatusNotFound, "unmatched", "HTTP GET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMWFixture(t)
			rec := f.do(tt.method, tt.path, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			dp := f.durationPoint(t)
			if dp.Count != 1 {
				t.Errorf("count = %d, want 1", dp.Count)
			}
			if v, _ := dp.Attributes.Value("route"); v.AsString() != tt.wantRoute {
				t.Errorf("route label = %q, want %q", v.AsString(), tt.wantRoute)
			}
			if v, _ := dp.Attributes.Value("status"); v.AsInt64() != int64(tt.wantStatus) {
				t.Errorf("status label = %d, want %d", v.AsInt64(), tt.wantStatus)
			}

			spans := f.spans.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("spans = %d, want 1", len(spans))
			}
			if spans[0].Name != tt.wantSpan {
				t.Errorf("span name = %q, want %q", spans[0].Name, tt.wantSpan)
			}
			var status int64
			for _, a := range spans[0].Attributes {
				if a.Key == "http.response.status_code" {
					status = a.Value.AsInt64()
				}
			}
			if status != int64(tt.wantStatus) {
				t.Errorf("span status attribute = %d, want %d", status, tt.wantStatus)
			}
		})
	}
}

func TestMiddleware_CorrelationID(t *testing.T) {
	t.Run("generated", func(t *testing.T) {
		f := newMWFixture(t)
		rec := f.do(http.MethodPost, "/lessons/1", nil)
		cid := rec.Header().Get("X-Correlation-ID")
		if len(cid) != 32 {
			t.Fatalf("X-Correlation-ID = %q, want a 32 hex char trace id", cid)
		}
		if got := f.spans.GetSpans()[0].SpanContext.TraceID().String(); got != cid {
			t.Errorf("span trace id = %s, want %s", got, cid)
		}
	})

	t.Run("continues caller trace", func(t *testing.T) {
		f := newMWFixture(t)
		const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
		rec := f.do(http.MethodPost, "/lessons/1", http.Header{
			"Traceparent": {"00-" + traceID + "-00f067aa0ba902b7-01"},
		})
		if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
			t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
		}
		if got := f.spans.GetSpans()[0].Parent.SpanID().String(); got != "00f067aa0ba902b7" {
			t.Errorf("parent span = %s, want the caller's span", got)
		}
	})
}

func TestMiddleware_WriterSupportsUpgrade(t *testing.T) {
	var hijacker, flusher bool
	h := Middleware(DefaultMetrics())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, hijacker = w.(http.Hijacker)
		_, flusher = w.(http.Flusher)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/voice", nil))
	if !hijacker || !flusher {
		t.Errorf("wrapped writer: hijacker=%v flusher=%v, want both for WebSocket upgrades", hijacker, flusher)
	}
}
