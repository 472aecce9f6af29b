package web

import (
	"net/http"

	"github.com/emiliopalmerini/caseconf/internal/experiment"
)

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var in experiment.CreateRunInput
	if err := decodeBody(r, &in, true, ""); err != nil {
		s.writeError(w, r, err)
		return
	}

	run, err := s.experiments.CreateRun(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.experiments.ListRuns(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	id, err := runIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		ModelVersion *string `json:"model_version"`
	}
	if err := decodeBody(r, &body, true, ""); err != nil {
		s.writeError(w, r, err)
		return
	}

	run, err := s.experiments.StartRun(r.Context(), id, body.ModelVersion)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleCompleteRun(w http.ResponseWriter, r *http.Request) {
	id, err := runIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body experiment.RunCompletion
	if err := decodeBody(r, &body, true, ""); err != nil {
		s.writeError(w, r, err)
		return
	}

	run, err := s.experiments.CompleteRun(r.Context(), id, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleFailRun(w http.ResponseWriter, r *http.Request) {
	id, err := runIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	run, err := s.experiments.FailRun(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
