package ports

import (
	"context"
	"time"
)

// MetricsExporter exports assignment and compile metrics to an external observability system.
type MetricsExporter interface {
	// RecordBatch records the outcome of one applied batch.
	RecordBatch(ctx context.Context, m *BatchMetrics)
	// RecordCompile records one compile of tabular input.
	RecordCompile(ctx context.Context, m *CompileMetrics)
	// Close shuts down the exporter and flushes any pending metrics.
	Close(ctx context.Context) error
}

// BatchMetrics summarizes one assignment batch.
type BatchMetrics struct {
	ExperimentID *string
	Total        int
	Added        int
	Failed       int
	CommitFailed bool
	Duration     time.Duration
}

// CompileMetrics summarizes one compile.
type CompileMetrics struct {
	Rows           int
	Configurations int
	Failed         bool
	ErrorKind      string
}
