// Package telemetry installs the OpenTelemetry meter provider used by builds.
//
// Every provider keeps an in-process manual reader so that build and stage
// counters can be read back, for example by the daemon's status endpoint.
// When OTEL_EXPORTER_OTLP_ENDPOINT is set, metrics are also pushed to that
// collector over gRPC.
//
// Example usage:
//
//	tel, err := telemetry.Setup(ctx, telemetry.Config{Service: "nextiso"})
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	b, err := build.New(env, nil, build.Options{Meter: tel.Meter()})
//	...
//	stats, err := tel.Stats(ctx)
package telemetry
