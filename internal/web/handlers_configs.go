package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/emiliopalmerini/caseconf/internal/assignment"
	"github.com/emiliopalmerini/caseconf/internal/compiler"
	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/ports"
)

func (s *Server) handleBatchConfigs(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Configs *[]json.RawMessage `json:"configs"`
	}
	if err := decodeBody(r, &body, true, ""); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Configs == nil {
		s.writeError(w, r, badRequest("'configs' array is required"))
		return
	}

	items, malformed := decodeItems(*body.Configs)
	result, err := s.applyDecoded(r, items, malformed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// decodeItems decodes each raw item on its own. A malformed item yields a
// failed outcome keyed by its position and does not affect the others.
func decodeItems(raw []json.RawMessage) ([]assignment.Request, map[int]assignment.Outcome) {
	items := make([]assignment.Request, len(raw))
	malformed := make(map[int]assignment.Outcome)
	for i, msg := range raw {
		if err := json.Unmarshal(msg, &items[i]); err != nil {
			var partial struct {
				UserEmail string `json:"user_email"`
			}
			_ = json.Unmarshal(msg, &partial)
			malformed[i] = assignment.Outcome{
				Status:    assignment.StatusFailed,
				UserEmail: strings.TrimSpace(partial.UserEmail),
				Error:     "invalid configuration: " + err.Error(),
				Kind:      domain.KindAssignmentRejected,
			}
		}
	}
	return items, malformed
}

func (s *Server) applyDecoded(r *http.Request, items []assignment.Request, malformed map[int]assignment.Outcome) (*assignment.BatchResult, error) {
	if len(malformed) == 0 {
		return s.engine.ApplyBatch(r.Context(), items)
	}

	valid := make([]assignment.Request, 0, len(items)-len(malformed))
	for i, it := range items {
		if _, bad := malformed[i]; !bad {
			valid = append(valid, it)
		}
	}

	merged := &assignment.BatchResult{Results: make([]assignment.Outcome, len(items)), Total: len(items)}
	var applied *assignment.BatchResult
	if len(valid) > 0 {
		var err error
		applied, err = s.engine.ApplyBatch(r.Context(), valid)
		if err != nil {
			return nil, err
		}
	}
	next := 0
	for i := range items {
		if o, bad := malformed[i]; bad {
			merged.Results[i] = o
			continue
		}
		merged.Results[i] = applied.Results[next]
		next++
	}
	return merged, nil
}

func (s *Server) handleUploadConfigs(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, r, badRequest("Invalid multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, badRequest("'file' is required"))
		return
	}
	defer file.Close()
	if !compiler.IsCSVFile(header.Filename) {
		s.writeError(w, r, domain.NewError(domain.KindInvalidCSV, "Only .csv files are accepted"))
		return
	}

	tags, err := formTags(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	configs, err := s.engine.Compile(r.Context(), file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(configs) == 0 {
		s.writeError(w, r, badRequest("File contains no configurations"))
		return
	}

	result, err := s.engine.ApplyCompiled(r.Context(), configs, tags)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func formTags(r *http.Request) (domain.Tags, error) {
	var tags domain.Tags
	if v := strings.TrimSpace(r.FormValue("experiment_id")); v != "" {
		tags.ExperimentID = &v
	}
	if v := strings.TrimSpace(r.FormValue("arm")); v != "" {
		tags.Arm = &v
	}
	if v := strings.TrimSpace(r.FormValue("rl_run_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return tags, badRequest("'rl_run_id' must be an integer")
		}
		tags.RlRunID = &id
	}
	return tags, nil
}

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	var opts ports.ListConfigsOptions
	q := r.URL.Query()
	if v := q.Get("user_email"); v != "" {
		opts.UserEmail = &v
	}
	if v := q.Get("experiment_id"); v != "" {
		opts.ExperimentID = &v
	}

	configs, err := s.configs.List(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"configs": configs})
}
