// Package observe wires Raa'ee's telemetry: OpenTelemetry metrics exported
// for Prometheus scraping, tracing, request-scoped slog loggers, and the HTTP
// middleware that binds an exchange ID to all three.
//
// Tests build their own [Metrics] from a private meter provider with
// [NewMetrics]; production code uses [DefaultMetrics].
package observe

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/raaee"

// Metrics groups the instruments recorded by the server. Names are prefixed
// with "raaee.".
type Metrics struct {
	STTDuration           metric.Float64Histogram // transcription and translation
	LLMDuration           metric.Float64Histogram // advisor completions
	TTSDuration           metric.Float64Histogram // speech proxy synthesis
	PipelineDuration      metric.Float64Histogram // whole /process_audio round
	ToolExecutionDuration metric.Float64Histogram // MCP tools
	HTTPRequestDuration   metric.Float64Histogram // attrs: method, path, status
	UploadSize            metric.Int64Histogram

	ProviderRequests   metric.Int64Counter // attrs: provider, kind, status
	ProviderErrors     metric.Int64Counter // attrs: provider, kind
	KnowledgeLookups   metric.Int64Counter // attrs: method
	Exchanges          metric.Int64Counter // attrs: status
	SpeechRequests     metric.Int64Counter // attrs: mode, status
	ToolCalls          metric.Int64Counter // attrs: tool, status
	BreakerTransitions metric.Int64Counter // attrs: kind, provider, state

	ActiveExchanges metric.Int64UpDownCounter
}

// Provider round trips, transcription in particular, often run past a second.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60}

// From a short tap up to the upload limit.
var sizeBuckets = []float64{1 << 10, 8 << 10, 32 << 10, 128 << 10, 512 << 10, 2 << 20, 8 << 20, 25 << 20}

// instruments creates instruments on one meter and remembers the first
// failure of each, so construction reads as a flat list.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) seconds(name, desc string, buckets ...float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := in.meter.Float64Histogram(name, opts...)
	in.errs = append(in.errs, err)
	return h
}

func (in *instruments) bytes(name, desc string) metric.Int64Histogram {
	h, err := in.meter.Int64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...),
	)
	in.errs = append(in.errs, err)
	return h
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	in.errs = append(in.errs, err)
	return c
}

func (in *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	in.errs = append(in.errs, err)
	return g
}

// NewMetrics registers every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	in := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		STTDuration:           in.seconds("raaee.stt.duration", "Speech-to-text transcription and translation latency.", latencyBuckets...),
		LLMDuration:           in.seconds("raaee.llm.duration", "Advisor completion latency.", latencyBuckets...),
		TTSDuration:           in.seconds("raaee.tts.duration", "Speech synthesis latency.", latencyBuckets...),
		PipelineDuration:      in.seconds("raaee.pipeline.duration", "Latency of one audio question.", latencyBuckets...),
		ToolExecutionDuration: in.seconds("raaee.tool_execution.duration", "MCP tool latency.", latencyBuckets...),
		HTTPRequestDuration:   in.seconds("raaee.http.request.duration", "HTTP request latency by method and route."),
		UploadSize:            in.bytes("raaee.upload.size", "Uploaded clip size."),

		ProviderRequests:   in.counter("raaee.provider.requests", "Provider calls by provider, kind and status."),
		ProviderErrors:     in.counter("raaee.provider.errors", "Provider failures by provider and kind."),
		KnowledgeLookups:   in.counter("raaee.knowledge.lookups", "Crop lookups by the method that matched."),
		Exchanges:          in.counter("raaee.exchanges", "Processed audio questions by status."),
		SpeechRequests:     in.counter("raaee.speech.requests", "Speech proxy calls by mode and status."),
		ToolCalls:          in.counter("raaee.tool.calls", "Tool invocations by tool and status."),
		BreakerTransitions: in.counter("raaee.breaker.transitions", "Circuit breaker state changes."),

		ActiveExchanges: in.gauge("raaee.active_exchanges", "Audio questions in flight."),
	}
	if err := errors.Join(in.errs...); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] built on the global
// meter provider. It panics if an instrument cannot be created.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: default metrics: " + err.Error())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

func attrs(kv ...string) metric.AddOption {
	set := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		set = append(set, attribute.String(kv[i], kv[i+1]))
	}
	return metric.WithAttributes(set...)
}

func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, attrs("provider", provider, "kind", kind, "status", status))
}

func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, attrs("provider", provider, "kind", kind))
}

func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1, attrs("tool", tool, "status", status))
}

// RecordKnowledgeLookup records which method resolved a crop query: exact,
// phonetic, semantic or miss.
func (m *Metrics) RecordKnowledgeLookup(ctx context.Context, method string) {
	m.KnowledgeLookups.Add(ctx, 1, attrs("method", method))
}

func (m *Metrics) RecordExchange(ctx context.Context, status string) {
	m.Exchanges.Add(ctx, 1, attrs("status", status))
}

// RecordSpeechRequest records a speech proxy call; mode is batch or stream.
func (m *Metrics) RecordSpeechRequest(ctx context.Context, mode, status string) {
	m.SpeechRequests.Add(ctx, 1, attrs("mode", mode, "status", status))
}

// RecordBreakerTransition records a provider's circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, kind, provider, state string) {
	m.BreakerTransitions.Add(ctx, 1, attrs("kind", kind, "provider", provider, "state", state))
}
