// Package observe provides OpenTelemetry metrics for the voice pipeline.
// A Prometheus exporter bridge is available via InitProvider so the agent
// can serve a standard /metrics endpoint. Tests should use NewMetrics with
// a custom metric.MeterProvider to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// meterName is the instrumentation scope name used for all edgevoice metrics.
const meterName = "github.com/edgevoice/edgevoice"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// FramesScored counts audio frames run through the wake word scorer.
	FramesScored metric.Int64Counter

	// FramesDropped counts frames discarded because the detection queue was full.
	FramesDropped metric.Int64Counter

	// Detections counts wake word detections. Attribute: model.
	Detections metric.Int64Counter

	// Score records per-frame top confidence values.
	Score metric.Float64Histogram

	// RecognitionDuration tracks how long a post-detection recognition
	// stream ran before silence ended it.
	RecognitionDuration metric.Float64Histogram

	// TranscriptsForwarded counts sentences shipped to the inference
	// endpoint. Attribute: status ("ok" or "error").
	TranscriptsForwarded metric.Int64Counter

	// AgentRequestDuration tracks end-to-end /process handling time.
	AgentRequestDuration metric.Float64Histogram

	// AgentSteps records how many reasoning steps each request took.
	AgentSteps metric.Int64Histogram

	// ToolCalls counts tool invocations. Attributes: tool, status.
	ToolCalls metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised Metrics struct using the given
// metric.MeterProvider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesScored, err = m.Int64Counter("edgevoice.wakeword.frames_scored",
		metric.WithDescription("Audio frames run through the wake word scorer."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("edgevoice.wakeword.frames_dropped",
		metric.WithDescription("Frames discarded because the detection queue was full."),
	); err != nil {
		return nil, err
	}
	if met.Detections, err = m.Int64Counter("edgevoice.wakeword.detections",
		metric.WithDescription("Wake word detections above threshold."),
	); err != nil {
		return nil, err
	}
	if met.Score, err = m.Float64Histogram("edgevoice.wakeword.score",
		metric.WithDescription("Per-frame top wake word confidence."),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1),
	); err != nil {
		return nil, err
	}
	if met.RecognitionDuration, err = m.Float64Histogram("edgevoice.recognizer.duration",
		metric.WithDescription("Duration of post-detection recognition streams."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptsForwarded, err = m.Int64Counter("edgevoice.forward.transcripts",
		metric.WithDescription("Sentences forwarded to the inference endpoint."),
	); err != nil {
		return nil, err
	}
	if met.AgentRequestDuration, err = m.Float64Histogram("edgevoice.agent.request_duration",
		metric.WithDescription("End-to-end /process handling time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AgentSteps, err = m.Int64Histogram("edgevoice.agent.steps",
		metric.WithDescription("Reasoning steps taken per request."),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("edgevoice.agent.tool_calls",
		metric.WithDescription("Tool invocations by the agent."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns a process-wide Metrics instance built from the global
// meter provider. All instruments are valid even before InitProvider has
// run; they just record nothing.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			m, _ = NewMetrics(noop.NewMeterProvider())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// InitProvider installs a metrics provider with a Prometheus exporter as
// the global OTel meter provider. Returns a shutdown function to call in a
// defer from main().
func InitProvider(ctx context.Context, serviceName, serviceVersion string) (func(context.Context) error, error) {
	if serviceName == "" {
		serviceName = "edgevoice"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}

// ModelAttr builds the model attribute used on detection counters.
func ModelAttr(model string) metric.AddOption {
	return metric.WithAttributes(attribute.String("model", model))
}

// StatusAttr builds the status attribute used on forward/tool counters.
func StatusAttr(status string) metric.AddOption {
	return metric.WithAttributes(attribute.String("status", status))
}

// ToolAttr builds tool+status attributes for tool call counters.
func ToolAttr(tool, status string) metric.AddOption {
	return metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
}
