package otel

import (
	"context"

	"github.com/emiliopalmerini/caseconf/internal/ports"
)

// NoOpExporter is a metrics exporter that does nothing.
type NoOpExporter struct{}

// NewNoOpExporter creates a new no-op exporter for graceful degradation.
func NewNoOpExporter() *NoOpExporter {
	return &NoOpExporter{}
}

func (e *NoOpExporter) RecordBatch(ctx context.Context, m *ports.BatchMetrics) {}

func (e *NoOpExporter) RecordCompile(ctx context.Context, m *ports.CompileMetrics) {}

func (e *NoOpExporter) Close(ctx context.Context) error {
	return nil
}
