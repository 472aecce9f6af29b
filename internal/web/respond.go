package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/logging"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidRequest, domain.KindInvalidUserEmail, domain.KindInvalidCaseID,
		domain.KindInvalidCSV, domain.KindInvalidExperimentState, domain.KindAssignmentRejected:
		return http.StatusBadRequest
	case domain.KindExperimentNotFound, domain.KindRunNotFound:
		return http.StatusNotFound
	case domain.KindInvalidRunTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	msg := domain.MessageOf(err)
	if kind == domain.KindUnknown {
		logging.FromContext(r.Context(), s.logger).ErrorContext(r.Context(), "request failed", "error", err)
		msg = "Internal server error"
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: kind.String(), Message: msg}})
}

func badRequest(msg string) error {
	return domain.NewError(domain.KindInvalidRequest, "%s", msg)
}

// decodeBody decodes a JSON body into v. An empty body is reported with emptyMsg
// unless allowEmpty is set.
func decodeBody(r *http.Request, v any, allowEmpty bool, emptyMsg string) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		if allowEmpty {
			return nil
		}
		return badRequest(emptyMsg)
	}
	if err != nil {
		return badRequest("Invalid JSON body")
	}
	return nil
}

func runIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, domain.NewError(domain.KindRunNotFound, "Run '%s' not found", r.PathValue("id"))
	}
	return id, nil
}
