// Package observe provides the service's observability primitives:
// OpenTelemetry metrics and tracing, trace-aware structured logging, and the
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped from
// /metrics through a Prometheus exporter bridge set up by [InitProvider].
// Tests should use [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/cognify-ai/cognify"

// Metrics holds every metric instrument of the service.
type Metrics struct {
	// --- Latency ---

	// DocumentDuration tracks text extraction latency.
	DocumentDuration metric.Float64Histogram

	// LLMDuration tracks completion latency. Attribute "purpose" is
	// "lesson" or "chat".
	LLMDuration metric.Float64Histogram

	// GenerationDuration tracks the whole analyze-and-generate request.
	GenerationDuration metric.Float64Histogram

	// --- Counters ---

	// GenerationResults counts lesson generation outcomes by "result"
	// (ok, no_file, extraction_failed, upstream_error, malformed_generation).
	GenerationResults metric.Int64Counter

	// ProviderRequests counts upstream calls by provider, kind and status.
	ProviderRequests metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes by breaker and
	// target state.
	BreakerTransitions metric.Int64Counter

	// AudioFramesDropped counts real-time frames dropped on a full mailbox,
	// by "stage" (capture or playback).
	AudioFramesDropped metric.Int64Counter

	// PlaybackUnderruns counts playback ticks that found no queued frame.
	PlaybackUnderruns metric.Int64Counter

	// --- Gauges ---

	// ActiveVoiceSessions tracks connected voice companions.
	ActiveVoiceSessions metric.Int64UpDownCounter

	// --- HTTP ---

	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets covers both sub-second audio work and multi-second document
// analysis.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.DocumentDuration, err = histogram("cognify.document.duration", "Latency of document text extraction."); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = histogram("cognify.llm.duration", "Latency of LLM completions."); err != nil {
		return nil, err
	}
	if met.GenerationDuration, err = histogram("cognify.generation.duration", "End-to-end latency of lesson generation."); err != nil {
		return nil, err
	}

	if met.GenerationResults, err = m.Int64Counter("cognify.generation.results",
		metric.WithDescription("Lesson generation outcomes by result."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("cognify.provider.requests",
		metric.WithDescription("Upstream provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("cognify.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions by breaker and state."),
	); err != nil {
		return nil, err
	}
	if met.AudioFramesDropped, err = m.Int64Counter("cognify.audio.frames_dropped",
		metric.WithDescription("Real-time audio frames dropped because a mailbox was full."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackUnderruns, err = m.Int64Counter("cognify.audio.playback_underruns",
		metric.WithDescription("Playback ticks rendered as silence because no frame was queued."),
	); err != nil {
		return nil, err
	}

	if met.ActiveVoiceSessions, err = m.Int64UpDownCounter("cognify.voice.active_sessions",
		metric.WithDescription("Number of connected voice sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("cognify.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] built on the global
// meter provider. Call it after [InitProvider].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest counts one upstream call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordGenerationResult counts one lesson generation outcome.
func (m *Metrics) RecordGenerationResult(ctx context.Context, result string) {
	m.GenerationResults.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordBreakerTransition counts one circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("state", state),
		),
	)
}

// RecordDroppedFrames adds n dropped frames for stage.
func (m *Metrics) RecordDroppedFrames(ctx context.Context, stage string, n int64) {
	if n <= 0 {
		return
	}
	m.AudioFramesDropped.Add(ctx, n, metric.WithAttributes(attribute.String("stage", stage)))
}
