package assignment

import (
	"context"
	"io"

	"github.com/emiliopalmerini/caseconf/internal/compiler"
	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/logging"
	"github.com/emiliopalmerini/caseconf/internal/ports"
)

// Compile reads a configuration file and compiles it, recording the outcome.
// It does not touch the store.
func (e *Engine) Compile(ctx context.Context, r io.Reader) ([]domain.DisplayConfiguration, error) {
	log := logging.FromContext(ctx, e.logger)

	rows, err := compiler.ReadCSV(r)
	if err != nil {
		e.recordCompile(ctx, 0, 0, err)
		return nil, err
	}
	configs, err := compiler.Compile(rows)
	if err != nil {
		log.WarnContext(ctx, "compile rejected", "rows", len(rows), "kind", domain.KindOf(err).String(), "error", err)
		e.recordCompile(ctx, len(rows), 0, err)
		return nil, err
	}
	log.DebugContext(ctx, "compiled configuration file", "rows", len(rows), "configurations", len(configs))
	e.recordCompile(ctx, len(rows), len(configs), nil)
	return configs, nil
}

func (e *Engine) recordCompile(ctx context.Context, rows, configs int, err error) {
	if e.metrics == nil {
		return
	}
	m := &ports.CompileMetrics{Rows: rows, Configurations: configs}
	if err != nil {
		m.Failed = true
		m.ErrorKind = domain.KindOf(err).String()
	}
	e.metrics.RecordCompile(ctx, m)
}
