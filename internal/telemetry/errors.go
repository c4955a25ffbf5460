package telemetry

import "errors"

var (
	ErrExporter = errors.New("failed to create metrics exporter")
	ErrCollect  = errors.New("failed to collect metrics")
)
