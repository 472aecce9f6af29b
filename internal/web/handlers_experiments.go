package web

import (
	"net/http"

	"github.com/emiliopalmerini/caseconf/internal/experiment"
)

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var in experiment.CreateExperimentInput
	if err := decodeBody(r, &in, false, "Request body required"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if in.Name == "" || len(in.Arms) == 0 {
		s.writeError(w, r, badRequest("'name' and 'arms' are required"))
		return
	}

	exp, err := s.experiments.CreateExperiment(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, exp)
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	exps, err := s.experiments.ListExperiments(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiments": exps})
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	detail, err := s.experiments.GetExperiment(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleUpdateExperimentStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status *string `json:"status"`
	}
	if err := decodeBody(r, &body, true, ""); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Status == nil {
		s.writeError(w, r, badRequest("'status' is required"))
		return
	}

	exp, err := s.experiments.UpdateExperimentStatus(r.Context(), r.PathValue("id"), *body.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}
