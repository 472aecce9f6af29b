package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/emiliopalmerini/caseconf/internal/infrastructure/config"
	"github.com/emiliopalmerini/caseconf/internal/ports"
)

const (
	serviceName    = "caseconf"
	serviceVersion = "1.0.0"
)

// Exporter exports batch and compile metrics to an OTEL Collector.
type Exporter struct {
	provider      *sdkmetric.MeterProvider
	batchesTotal  metric.Int64Counter
	configsTotal  metric.Int64Counter
	batchDuration metric.Float64Histogram
	compilesTotal metric.Int64Counter
	compiledRows  metric.Int64Histogram
}

// NewExporter creates an exporter pushing to the OTLP gRPC endpoint in cfg.
func NewExporter(ctx context.Context, cfg config.Otel) (*Exporter, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL exporter is disabled or endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	e, err := NewExporterWithReader(ctx, sdkmetric.NewPeriodicReader(exp))
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(e.provider)
	return e, nil
}

// NewExporterWithReader builds the instruments on a provider fed to reader.
func NewExporterWithReader(ctx context.Context, reader sdkmetric.Reader) (*Exporter, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	meter := provider.Meter(serviceName)

	batchesTotal, err := meter.Int64Counter(
		"caseconf_batches_total",
		metric.WithDescription("Assignment batches applied"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating batches counter: %w", err)
	}

	configsTotal, err := meter.Int64Counter(
		"caseconf_configs_total",
		metric.WithDescription("Batch items by outcome"),
		metric.WithUnit("{config}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating configs counter: %w", err)
	}

	batchDuration, err := meter.Float64Histogram(
		"caseconf_batch_duration_seconds",
		metric.WithDescription("Time to apply one assignment batch"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating batch duration histogram: %w", err)
	}

	compilesTotal, err := meter.Int64Counter(
		"caseconf_compiles_total",
		metric.WithDescription("Tabular inputs compiled"),
		metric.WithUnit("{compile}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating compiles counter: %w", err)
	}

	compiledRows, err := meter.Int64Histogram(
		"caseconf_compile_rows",
		metric.WithDescription("Data rows per compiled input"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating compile rows histogram: %w", err)
	}

	return &Exporter{
		provider:      provider,
		batchesTotal:  batchesTotal,
		configsTotal:  configsTotal,
		batchDuration: batchDuration,
		compilesTotal: compilesTotal,
		compiledRows:  compiledRows,
	}, nil
}

func (e *Exporter) RecordBatch(ctx context.Context, m *ports.BatchMetrics) {
	experiment := ""
	if m.ExperimentID != nil {
		experiment = *m.ExperimentID
	}
	outcome := "committed"
	if m.CommitFailed {
		outcome = "commit_failed"
	}
	batchAttrs := metric.WithAttributes(
		attribute.String("experiment_id", experiment),
		attribute.String("outcome", outcome),
	)

	e.batchesTotal.Add(ctx, 1, batchAttrs)
	e.batchDuration.Record(ctx, m.Duration.Seconds(), batchAttrs)
	e.configsTotal.Add(ctx, int64(m.Added), metric.WithAttributes(
		attribute.String("experiment_id", experiment),
		attribute.String("status", "added"),
	))
	e.configsTotal.Add(ctx, int64(m.Failed), metric.WithAttributes(
		attribute.String("experiment_id", experiment),
		attribute.String("status", "failed"),
	))
}

func (e *Exporter) RecordCompile(ctx context.Context, m *ports.CompileMetrics) {
	outcome := "ok"
	if m.Failed {
		outcome = "error"
	}
	opt := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("error_kind", m.ErrorKind),
	)
	e.compilesTotal.Add(ctx, 1, opt)
	e.compiledRows.Record(ctx, int64(m.Rows), opt)
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
