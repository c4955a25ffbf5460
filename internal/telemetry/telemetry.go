package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/nextos/nextiso/internal/build"
)

// Environment variable that enables OTLP export.
const EndpointEnv = "OTEL_EXPORTER_OTLP_ENDPOINT"

// Default push interval for the OTLP exporter.
const defaultInterval = 30 * time.Second

// Telemetry settings.
type Config struct {
	Service  string        // Reported as service.name.
	Version  string        // Reported as service.version.
	Endpoint string        // OTLP collector; empty reads EndpointEnv, and no value disables export.
	Interval time.Duration // Push interval for the exporter. Zero means 30s.
	Global   bool          // Install the provider as the otel global.
}

// A meter provider with a readable in-process view.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader
	service  string
	export   bool
}

// Creates the meter provider.
func Setup(ctx context.Context, cfg Config) (*Telemetry, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = os.Getenv(EndpointEnv)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.Service),
		attribute.String("service.version", cfg.Version),
	)

	reader := sdkmetric.NewManualReader()
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	}

	if cfg.Endpoint != "" {
		exp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpointURL(cfg.Endpoint))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExporter, err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.Interval)),
		))
		slog.Debug("exporting metrics", "endpoint", cfg.Endpoint, "interval", cfg.Interval)
	}

	t := &Telemetry{
		provider: sdkmetric.NewMeterProvider(opts...),
		reader:   reader,
		service:  cfg.Service,
		export:   cfg.Endpoint != "",
	}
	if cfg.Global {
		otel.SetMeterProvider(t.provider)
	}
	return t, nil
}

// Returns the meter builds record on.
func (t *Telemetry) Meter() metric.Meter {
	return t.provider.Meter(t.service)
}

// Whether metrics are pushed to a collector.
func (t *Telemetry) Exporting() bool {
	return t.export
}

// Flushes pending exports and stops the provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	err := t.provider.Shutdown(ctx)
	if errors.Is(err, sdkmetric.ErrReaderShutdown) {
		return nil
	}
	return err
}

// Build and stage totals since the provider started.
type Stats struct {
	Builds map[string]int64      `json:"builds"` // Finished builds by status.
	Stages map[string]StageStats `json:"stages"` // Stage runs by stage name.
}

// Totals for one stage.
type StageStats struct {
	Count   uint64  `json:"count"`   // Number of runs.
	Failed  uint64  `json:"failed"`  // Runs that failed.
	Seconds float64 `json:"seconds"` // Total time spent.
}

// Reads the current build and stage totals.
func (t *Telemetry) Stats(ctx context.Context) (Stats, error) {
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return Stats{}, fmt.Errorf("%w: %w", ErrCollect, err)
	}

	stats := Stats{
		Builds: make(map[string]int64),
		Stages: make(map[string]StageStats),
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case build.MetricBuildsTotal:
				sum, ok := m.Data.(metricdata.Sum[int64])
				if !ok {
					continue
				}
				for _, dp := range sum.DataPoints {
					stats.Builds[label(dp.Attributes, "status")] += dp.Value
				}
			case build.MetricStageDuration:
				hist, ok := m.Data.(metricdata.Histogram[float64])
				if !ok {
					continue
				}
				for _, dp := range hist.DataPoints {
					name := label(dp.Attributes, "stage")
					s := stats.Stages[name]
					s.Count += dp.Count
					s.Seconds += dp.Sum
					if label(dp.Attributes, "status") == "failed" {
						s.Failed += dp.Count
					}
					stats.Stages[name] = s
				}
			}
		}
	}
	return stats, nil
}

func label(set attribute.Set, key attribute.Key) string {
	v, ok := set.Value(key)
	if !ok {
		return ""
	}
	return v.AsString()
}
