package otel

import (
	"context"
	"log/slog"

	"github.com/emiliopalmerini/caseconf/internal/infrastructure/config"
	"github.com/emiliopalmerini/caseconf/internal/ports"
)

// FromConfig returns an OTLP exporter when cfg enables one, and a no-op
// exporter otherwise or when the exporter cannot be built.
func FromConfig(ctx context.Context, cfg config.Otel, logger *slog.Logger) ports.MetricsExporter {
	if !cfg.Enabled {
		return NewNoOpExporter()
	}
	exp, err := NewExporter(ctx, cfg)
	if err != nil {
		logger.Warn("metrics disabled", "error", err)
		return NewNoOpExporter()
	}
	logger.Info("exporting metrics", "endpoint", cfg.Endpoint, "insecure", cfg.Insecure)
	return exp
}
