// Package metrics defines the OpenTelemetry instruments of the denoising
// pipeline.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/xaionaro-go/poise"

const (
	NameFramesProcessed    = "poise.frames.processed"
	NameFramesBypassed     = "poise.frames.bypassed"
	NameInferenceDuration  = "poise.inference.duration"
	NameInputOverflow      = "poise.input.overflow_samples"
	NameRenderUnderruns    = "poise.render.underruns"
	NameRenderOpenAttempts = "poise.render.open_attempts"
	NameSessionsActive     = "poise.sessions.active"
)

const (
	AttrResult = "result"

	ResultSuccess         = "success"
	ResultFailure         = "failure"
	ResultFallbackSuccess = "fallback_success"
	ResultFallbackFailure = "fallback_failure"
)

// Metrics is safe for concurrent use.
type Metrics struct {
	FramesProcessed    metric.Int64Counter
	FramesBypassed     metric.Int64Counter
	InferenceDuration  metric.Float64Histogram
	InputOverflow      metric.Int64Counter
	RenderUnderruns    metric.Int64Counter
	RenderOpenAttempts metric.Int64Counter
	SessionsActive     metric.Int64UpDownCounter
}

// a frame is 10ms, so the interesting range is well below it
var inferenceBuckets = []float64{
	0.0005, 0.001, 0.002, 0.003, 0.005, 0.0075, 0.01, 0.02, 0.05, 0.1,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesProcessed, err = m.Int64Counter(NameFramesProcessed,
		metric.WithDescription("Frames passed through the model."),
	); err != nil {
		return nil, fmt.Errorf("unable to create %s: %w", NameFramesProcessed, err)
	}
	if met.FramesBypassed, err = m.Int64Counter(NameFramesBypassed,
		metric.WithDescription("Frames skipped by the voice activity gate."),
	); err != nil {
		return nil, fmt.Errorf("unable to create %s: %w", NameFramesBypassed, err)
	}
	if met.InferenceDuration, err = m.Float64Histogram(NameInferenceDuration,
		metric.WithDescription("Wall-clock time of one model inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(inferenceBuckets...),
	); err != nil {
		return nil, fmt.Errorf("unable to create %s: %w", NameInferenceDuration, err)
	}
	if met.InputOverflow, err = m.Int64Counter(NameInputOverflow,
		metric.WithDescription("Captured samples dropped because the input buffer was full."),
	); err != nil {
		return nil, fmt.Errorf("unable to create %s: %w", NameInputOverflow, err)
	}
	if met.RenderUnderruns, err = m.Int64Counter(NameRenderUnderruns,
		metric.WithDescription("Render callbacks filled with silence."),
	); err != nil {
		return nil, fmt.Errorf("unable to create %s: %w", NameRenderUnderruns, err)
	}
	if met.RenderOpenAttempts, err = m.Int64Counter(NameRenderOpenAttempts,
		metric.WithDescription("Attempts to open the render stream by result."),
	); err != nil {
		return nil, fmt.Errorf("unable to create %s: %w", NameRenderOpenAttempts, err)
	}
	if met.SessionsActive, err = m.Int64UpDownCounter(NameSessionsActive,
		metric.WithDescription("Running streaming sessions."),
	); err != nil {
		return nil, fmt.Errorf("unable to create %s: %w", NameSessionsActive, err)
	}
	return met, nil
}

// Noop returns instruments which record nothing.
func Noop() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) RecordInference(ctx context.Context, d time.Duration) {
	m.FramesProcessed.Add(ctx, 1)
	m.InferenceDuration.Record(ctx, d.Seconds())
}

func (m *Metrics) RecordBypass(ctx context.Context) {
	m.FramesBypassed.Add(ctx, 1)
}

func (m *Metrics) RecordRenderOpenAttempt(ctx context.Context, result string) {
	m.RenderOpenAttempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String(AttrResult, result)),
	)
}
