package web

import (
	"net/http"

	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/util"
	"github.com/emiliopalmerini/caseconf/internal/web/templates"
)

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := r.URL.Query().Get("status")

	exps, err := s.experiments.ListExperiments(ctx, status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data := templates.Overview{Filter: status, Experiments: make([]templates.ExperimentRow, 0, len(exps))}
	for _, e := range exps {
		data.Experiments = append(data.Experiments, toRow(e))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.OverviewPage(data).Render(ctx, w); err != nil {
		s.logger.ErrorContext(ctx, "failed to render overview", "error", err)
	}
}

func toRow(e *domain.Experiment) templates.ExperimentRow {
	row := templates.ExperimentRow{
		ExperimentID: e.ExperimentID,
		Name:         e.Name,
		Description:  util.Deref(e.Description, ""),
		Status:       string(e.Status),
		CasePoolSize: -1,
		CreatedAt:    e.CreatedAt,
	}
	if e.CasePool != nil {
		row.CasePoolSize = len(e.CasePool)
	}
	for _, a := range e.Arms {
		row.Arms = append(row.Arms, a.Name)
	}
	return row
}
