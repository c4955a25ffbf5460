package build

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names.
const (
	MetricBuildDuration = "nextiso_build_duration_seconds"
	MetricBuildsTotal   = "nextiso_builds_total"
	MetricStageDuration = "nextiso_stage_duration_seconds"
)

// Build and stage metrics.
type Metrics struct {
	buildDuration metric.Float64Histogram
	buildTotal    metric.Int64Counter
	stageDuration metric.Float64Histogram
}

// Creates the build instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	buildDuration, err := meter.Float64Histogram(
		MetricBuildDuration,
		metric.WithDescription("Duration of image builds in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	buildTotal, err := meter.Int64Counter(
		MetricBuildsTotal,
		metric.WithDescription("Total number of image builds"),
	)
	if err != nil {
		return nil, err
	}

	stageDuration, err := meter.Float64Histogram(
		MetricStageDuration,
		metric.WithDescription("Duration of build stages in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		buildDuration: buildDuration,
		buildTotal:    buildTotal,
		stageDuration: stageDuration,
	}, nil
}

// Records a finished build. Status is "success", "failed" or "rejected".
func (m *Metrics) RecordBuild(ctx context.Context, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.buildDuration.Record(ctx, duration.Seconds(), attrs)
	m.buildTotal.Add(ctx, 1, attrs)
}

// Records a finished stage.
func (m *Metrics) RecordStage(ctx context.Context, stage, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	))
}
