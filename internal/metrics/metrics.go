// Package metrics records pipeline activity through the OpenTelemetry metrics API.
//
// Binaries call [InitProvider], which installs an SDK meter provider that
// periodically writes every data point to the run log. Tests build their own
// with [New] and an sdk ManualReader.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/book-expert/dialogue-tts"

// Instrument names.
const (
	NameUnits             = "dialogue_tts.units"
	NameRuns              = "dialogue_tts.runs"
	NameRetries           = "dialogue_tts.synthesis.retries"
	NameSynthesisDuration = "dialogue_tts.synthesis.duration"
	NameOutputDuration    = "dialogue_tts.output.duration"
)

// Unit outcomes.
const (
	OutcomeSynthesized = "synthesized"
	OutcomeMixed       = "mixed"
	OutcomeSkipped     = "skipped"
	OutcomeDropped     = "dropped"
)

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Metrics holds the instruments. A nil *Metrics records nothing.
type Metrics struct {
	Units             metric.Int64Counter
	Runs              metric.Int64Counter
	Retries           metric.Int64Counter
	SynthesisDuration metric.Float64Histogram
	OutputDuration    metric.Float64Histogram
}

// latencyBuckets covers a single provider call, including backoff.
var latencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32, 64}

// New creates the instruments on mp.
func New(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	met := &Metrics{}

	var err error

	met.Units, err = meter.Int64Counter(NameUnits,
		metric.WithDescription("Script units processed, by kind and outcome."))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", NameUnits, err)
	}

	met.Runs, err = meter.Int64Counter(NameRuns,
		metric.WithDescription("Pipeline runs, by status."))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", NameRuns, err)
	}

	met.Retries, err = meter.Int64Counter(NameRetries,
		metric.WithDescription("Synthesis retries, by failure kind."))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", NameRetries, err)
	}

	met.SynthesisDuration, err = meter.Float64Histogram(NameSynthesisDuration,
		metric.WithDescription("Latency of one synthesized unit including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", NameSynthesisDuration, err)
	}

	met.OutputDuration, err = meter.Float64Histogram(NameOutputDuration,
		metric.WithDescription("Playback length of rendered output."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", NameOutputDuration, err)
	}

	return met, nil
}

// RecordUnit counts one processed unit.
func (m *Metrics) RecordUnit(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}

	m.Units.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// RecordSynthesis observes the latency of one synthesized unit.
func (m *Metrics) RecordSynthesis(ctx context.Context, elapsed time.Duration, outcome string) {
	if m == nil {
		return
	}

	m.SynthesisDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordRetry counts one retry caused by failureKind.
func (m *Metrics) RecordRetry(ctx context.Context, failureKind string) {
	if m == nil {
		return
	}

	m.Retries.Add(ctx, 1, metric.WithAttributes(attribute.String("failure_kind", failureKind)))
}

// RecordRun counts a finished run and, on success, the output length.
func (m *Metrics) RecordRun(ctx context.Context, status string, output time.Duration) {
	if m == nil {
		return
	}

	m.Runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))

	if status == StatusOK {
		m.OutputDuration.Record(ctx, output.Seconds())
	}
}
