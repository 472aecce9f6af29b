package web

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/emiliopalmerini/caseconf/internal/adapters/otel"
	"github.com/emiliopalmerini/caseconf/internal/adapters/turso"
	"github.com/emiliopalmerini/caseconf/internal/assignment"
	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/experiment"
	"github.com/emiliopalmerini/caseconf/internal/logging"
	"github.com/emiliopalmerini/caseconf/internal/migrate"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	db, err := sql.Open("libsql", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	if err := migrate.RunAll(context.Background(), db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	repos := turso.NewRepositories(db)
	logger := logging.Discard()
	seq := 0
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := experiment.NewService(repos.Experiments, repos.Runs, logger,
		experiment.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("exp-%012d", seq)
		}),
		experiment.WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	)
	engine := assignment.NewEngine(repos.Experiments, repos.Runs, repos.Configs, otel.NewNoOpExporter(), logger)
	return NewServer(0, svc, engine, repos.Configs, logger).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	body := decode[errorBody](t, rec)
	if body.Error.Code != code {
		t.Errorf("code = %q, want %q (message %q)", body.Error.Code, code, body.Error.Message)
	}
}

func createExperiment(t *testing.T, h http.Handler, body string) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/experiments", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create experiment status = %d: %s", rec.Code, rec.Body.String())
	}
	return decode[struct {
		ExperimentID string `json:"experiment_id"`
	}](t, rec).ExperimentID
}

func TestHealth(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestExperimentEndpoints(t *testing.T) {
	h := newTestServer(t)

	expectError(t, do(t, h, http.MethodPost, "/api/experiments", ""), http.StatusBadRequest, "invalid_request")
	expectError(t, do(t, h, http.MethodPost, "/api/experiments", `{"name":"x"}`), http.StatusBadRequest, "invalid_request")
	expectError(t, do(t, h, http.MethodPost, "/api/experiments", `{not json`), http.StatusBadRequest, "invalid_request")

	id := createExperiment(t, h, `{"name":"layout","arms":[{"name":"control"},{"name":"treatment"}],"case_pool":[1,2]}`)
	if id != "exp-000000000001" {
		t.Errorf("experiment id = %q", id)
	}

	rec := do(t, h, http.MethodGet, "/api/experiments/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	detail := decode[map[string]any](t, rec)
	if detail["name"] != "layout" || detail["status"] != "active" {
		t.Errorf("unexpected detail %v", detail)
	}
	if runs, ok := detail["runs"].([]any); !ok || len(runs) != 0 {
		t.Errorf("runs = %v, want empty list", detail["runs"])
	}

	expectError(t, do(t, h, http.MethodGet, "/api/experiments/missing", ""), http.StatusNotFound, "experiment_not_found")

	rec = do(t, h, http.MethodGet, "/api/experiments?status=active", "")
	list := decode[struct {
		Experiments []map[string]any `json:"experiments"`
	}](t, rec)
	if len(list.Experiments) != 1 {
		t.Errorf("listed %d experiments, want 1", len(list.Experiments))
	}
	rec = do(t, h, http.MethodGet, "/api/experiments?status=bogus", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown status filter: status %d, want 200", rec.Code)
	}
	if list := decode[struct {
		Experiments []map[string]any `json:"experiments"`
	}](t, rec); list.Experiments == nil || len(list.Experiments) != 0 {
		t.Errorf("unknown status filter listed %v, want empty list", list.Experiments)
	}
}

func TestExperimentStatusAndRuns(t *testing.T) {
	h := newTestServer(t)
	id := createExperiment(t, h, `{"name":"layout","arms":[{"name":"control"}]}`)

	expectError(t, do(t, h, http.MethodPatch, "/api/experiments/"+id+"/status", `{}`), http.StatusBadRequest, "invalid_request")
	expectError(t, do(t, h, http.MethodPatch, "/api/experiments/"+id+"/status", `{"status":"bogus"}`),
		http.StatusBadRequest, "invalid_experiment_state")
	expectError(t, do(t, h, http.MethodPatch, "/api/experiments/missing/status", `{"status":"paused"}`),
		http.StatusNotFound, "experiment_not_found")

	rec := do(t, h, http.MethodPost, "/api/experiments/"+id+"/runs", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create run status = %d: %s", rec.Code, rec.Body.String())
	}
	run := decode[map[string]any](t, rec)
	if run["status"] != "pending" || run["triggered_by"] != "manual" {
		t.Errorf("unexpected run %v", run)
	}
	runPath := fmt.Sprintf("/api/runs/%d", int64(run["id"].(float64)))

	rec = do(t, h, http.MethodPost, runPath+"/start", `{"model_version":"v2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[map[string]any](t, rec)["model_version"]; got != "v2" {
		t.Errorf("model_version = %v", got)
	}
	expectError(t, do(t, h, http.MethodPost, runPath+"/start", ""), http.StatusConflict, "invalid_run_transition")

	rec = do(t, h, http.MethodPost, runPath+"/complete", `{"configs_generated":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d: %s", rec.Code, rec.Body.String())
	}
	expectError(t, do(t, h, http.MethodPost, runPath+"/fail", ""), http.StatusConflict, "invalid_run_transition")
	expectError(t, do(t, h, http.MethodPost, "/api/runs/999/start", ""), http.StatusNotFound, "run_not_found")
	expectError(t, do(t, h, http.MethodPost, "/api/runs/abc/start", ""), http.StatusNotFound, "run_not_found")

	rec = do(t, h, http.MethodGet, "/api/experiments/"+id+"/runs", "")
	runs := decode[struct {
		Runs []map[string]any `json:"runs"`
	}](t, rec)
	if len(runs.Runs) != 1 || runs.Runs[0]["status"] != "completed" {
		t.Errorf("runs = %v", runs.Runs)
	}

	rec = do(t, h, http.MethodPatch, "/api/experiments/"+id+"/status", `{"status":"paused"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("pause status = %d", rec.Code)
	}
	expectError(t, do(t, h, http.MethodPost, "/api/experiments/"+id+"/runs", `{}`),
		http.StatusBadRequest, "invalid_experiment_state")
	expectError(t, do(t, h, http.MethodGet, "/api/experiments/missing/runs", ""), http.StatusNotFound, "experiment_not_found")
}

func TestBatchConfigs(t *testing.T) {
	h := newTestServer(t)

	expectError(t, do(t, h, http.MethodPost, "/api/configs/batch", `{}`), http.StatusBadRequest, "invalid_request")
	expectError(t, do(t, h, http.MethodPost, "/api/configs/batch", `{"configs":[]}`), http.StatusBadRequest, "invalid_request")

	body := `{"configs":[
		{"user_email":"a@x.com","case_id":1,"path_config":[{"path":"Background","style":{"collapse":true,"highlight":false,"top":null}}]},
		{"case_id":2},
		{"user_email":"c@x.com","case_id":"abc"}
	]}`
	rec := do(t, h, http.MethodPost, "/api/configs/batch", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("batch status = %d: %s", rec.Code, rec.Body.String())
	}
	result := decode[assignment.BatchResult](t, rec)
	var statuses []string
	for _, o := range result.Results {
		statuses = append(statuses, o.Status)
	}
	if diff := cmp.Diff([]string{"added", "failed", "failed"}, statuses); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	if result.Total != 3 || result.Results[2].UserEmail != "c@x.com" {
		t.Errorf("unexpected result %+v", result)
	}

	rec = do(t, h, http.MethodGet, "/api/configs?user_email=a@x.com", "")
	list := decode[struct {
		Configs []map[string]any `json:"configs"`
	}](t, rec)
	if len(list.Configs) != 1 || list.Configs[0]["id"] != "a@x.com-1" {
		t.Errorf("configs = %v", list.Configs)
	}
}

func upload(t *testing.T, h http.Handler, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.WriteString(fw, content)
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/configs/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUploadConfigs(t *testing.T) {
	h := newTestServer(t)
	id := createExperiment(t, h, `{"name":"layout","arms":[{"name":"control"}]}`)
	csv := "User,Case No.,Path,Collapse,Highlight,Top\n" +
		"a@x.com,1,Background.abc,true,false,1\n" +
		"a@x.com,1,Background,,,\n" +
		"b@x.com,2,Background,,,\n"

	rec := upload(t, h, "configs.CSV", csv, map[string]string{"experiment_id": id, "arm": "control"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body.String())
	}
	result := decode[assignment.BatchResult](t, rec)
	if result.Total != 2 {
		t.Fatalf("total = %d, want 2", result.Total)
	}
	for _, o := range result.Results {
		if o.Status != assignment.StatusAdded {
			t.Errorf("outcome %+v, want added", o)
		}
	}
	if want := "a@x.com-1-" + id + "-control-"; result.Results[0].ID != want {
		t.Errorf("id = %q, want %q", result.Results[0].ID, want)
	}

	expectError(t, upload(t, h, "configs.txt", csv, nil), http.StatusBadRequest, "invalid_csv")
	expectError(t, upload(t, h, "bad.csv", "User,Case No.,Path,Collapse,Highlight,Top\na@x.com,abc,Background,,,\n", nil),
		http.StatusBadRequest, "invalid_case_id")
	expectError(t, upload(t, h, "configs.csv", csv, map[string]string{"rl_run_id": "x"}), http.StatusBadRequest, "invalid_request")
}

func TestOverviewPage(t *testing.T) {
	h := newTestServer(t)
	createExperiment(t, h, `{"name":"layout test","arms":[{"name":"control"}]}`)

	rec := do(t, h, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("overview status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "layout test") {
		t.Error("overview should list the experiment")
	}
	if rec := do(t, h, http.MethodGet, "/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown page status = %d, want 404", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind domain.Kind
		want int
	}{
		{domain.KindUnknown, http.StatusInternalServerError},
		{domain.KindBatchCommit, http.StatusInternalServerError},
		{domain.KindInvalidCSV, http.StatusBadRequest},
		{domain.KindInvalidExperimentState, http.StatusBadRequest},
		{domain.KindAssignmentRejected, http.StatusBadRequest},
		{domain.KindExperimentNotFound, http.StatusNotFound},
		{domain.KindRunNotFound, http.StatusNotFound},
		{domain.KindInvalidRunTransition, http.StatusConflict},
	}
	for _, tt := range tests {
		if got := statusFor(tt.kind); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}
