package experiment

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/logging"
	"github.com/emiliopalmerini/caseconf/internal/ports"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(exps *ports.MockExperimentRepository, runs *ports.MockRlRunRepository) *Service {
	if exps == nil {
		exps = &ports.MockExperimentRepository{}
	}
	if runs == nil {
		runs = &ports.MockRlRunRepository{}
	}
	return NewService(exps, runs, logging.Discard(),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "exp-000000000001" }))
}

func experimentWithStatus(status domain.ExperimentStatus) *domain.Experiment {
	return &domain.Experiment{
		ExperimentID: "exp-000000000001",
		Name:         "rl-v1",
		Status:       status,
		Arms:         []domain.Arm{{Name: "control"}, {Name: "treatment"}},
	}
}

func TestNewExperimentID(t *testing.T) {
	id := NewExperimentID()
	if !regexp.MustCompile(`^exp-[0-9a-f]{12}$`).MatchString(id) {
		t.Errorf("unexpected id %q", id)
	}
	if id == NewExperimentID() {
		t.Error("expected distinct ids")
	}
}

func TestCreateExperiment(t *testing.T) {
	var stored *domain.Experiment
	svc := newTestService(&ports.MockExperimentRepository{
		CreateFunc: func(ctx context.Context, e *domain.Experiment) error {
			stored = e
			return nil
		},
	}, nil)

	desc := "first"
	exp, err := svc.CreateExperiment(context.Background(), CreateExperimentInput{
		Name:        "rl-v1",
		Description: &desc,
		Arms:        []domain.Arm{{Name: "control"}, {Name: "treatment"}},
		CasePool:    []int64{1, 2},
	})
	if err != nil {
		t.Fatalf("CreateExperiment() error: %v", err)
	}
	if stored != exp {
		t.Error("expected created experiment to be stored")
	}
	if exp.ExperimentID != "exp-000000000001" || exp.Status != domain.ExperimentActive {
		t.Errorf("unexpected experiment %+v", exp)
	}
	if !exp.CreatedAt.Equal(fixedNow) || !exp.UpdatedAt.Equal(fixedNow) {
		t.Errorf("timestamps not set: %v / %v", exp.CreatedAt, exp.UpdatedAt)
	}
}

func TestCreateExperiment_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   CreateExperimentInput
	}{
		{"missing name", CreateExperimentInput{Arms: []domain.Arm{{Name: "control"}}}},
		{"missing arms", CreateExperimentInput{Name: "x"}},
		{"unnamed arm", CreateExperimentInput{Name: "x", Arms: []domain.Arm{{Name: ""}}}},
		{"duplicate arm", CreateExperimentInput{Name: "x", Arms: []domain.Arm{{Name: "a"}, {Name: "a"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&ports.MockExperimentRepository{
				CreateFunc: func(ctx context.Context, e *domain.Experiment) error {
					t.Fatal("storage must not be touched")
					return nil
				},
			}, nil)
			_, err := svc.CreateExperiment(context.Background(), tt.in)
			if !errors.Is(err, domain.ErrInvalidRequest) {
				t.Errorf("error = %v, want invalid request", err)
			}
		})
	}
}

func TestGetExperiment(t *testing.T) {
	svc := newTestService(&ports.MockExperimentRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*domain.Experiment, error) {
			if id == "missing" {
				return nil, nil
			}
			return experimentWithStatus(domain.ExperimentActive), nil
		},
	}, &ports.MockRlRunRepository{
		ListByExperimentFunc: func(ctx context.Context, id string) ([]*domain.RlRun, error) {
			return []*domain.RlRun{{ID: 2}, {ID: 1}}, nil
		},
	})

	detail, err := svc.GetExperiment(context.Background(), "exp-000000000001")
	if err != nil {
		t.Fatalf("GetExperiment() error: %v", err)
	}
	if len(detail.Runs) != 2 || detail.Runs[0].ID != 2 {
		t.Errorf("unexpected runs %+v", detail.Runs)
	}

	_, err = svc.GetExperiment(context.Background(), "missing")
	if !errors.Is(err, domain.ErrExperimentNotFound) {
		t.Errorf("error = %v, want experiment not found", err)
	}
}

func TestListExperiments(t *testing.T) {
	var got ports.ListExperimentsOptions
	svc := newTestService(&ports.MockExperimentRepository{
		ListFunc: func(ctx context.Context, opts ports.ListExperimentsOptions) ([]*domain.Experiment, error) {
			got = opts
			return nil, nil
		},
	}, nil)

	if _, err := svc.ListExperiments(context.Background(), ""); err != nil {
		t.Fatalf("ListExperiments() error: %v", err)
	}
	if got.Status != nil {
		t.Errorf("expected no status filter, got %v", *got.Status)
	}

	if _, err := svc.ListExperiments(context.Background(), "paused"); err != nil {
		t.Fatalf("ListExperiments(paused) error: %v", err)
	}
	if got.Status == nil || *got.Status != domain.ExperimentPaused {
		t.Errorf("expected paused filter, got %v", got.Status)
	}

	exps, err := svc.ListExperiments(context.Background(), "bogus")
	if err != nil {
		t.Fatalf("ListExperiments(bogus) error: %v", err)
	}
	if exps == nil || len(exps) != 0 {
		t.Errorf("ListExperiments(bogus) = %v, want empty list", exps)
	}
}

func TestUpdateExperimentStatus(t *testing.T) {
	var updated domain.ExperimentStatus
	var updatedAt time.Time
	svc := newTestService(&ports.MockExperimentRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*domain.Experiment, error) {
			return experimentWithStatus(domain.ExperimentActive), nil
		},
		UpdateStatusFunc: func(ctx context.Context, id string, st domain.ExperimentStatus, at time.Time) error {
			updated, updatedAt = st, at
			return nil
		},
	}, nil)

	exp, err := svc.UpdateExperimentStatus(context.Background(), "exp-000000000001", "paused")
	if err != nil {
		t.Fatalf("UpdateExperimentStatus() error: %v", err)
	}
	if exp.Status != domain.ExperimentPaused || updated != domain.ExperimentPaused {
		t.Errorf("status = %s / stored %s, want paused", exp.Status, updated)
	}
	if !updatedAt.Equal(fixedNow) || !exp.UpdatedAt.Equal(fixedNow) {
		t.Errorf("updated_at not touched: %v", updatedAt)
	}
}

func TestUpdateExperimentStatus_BogusRejectedBeforeStorage(t *testing.T) {
	svc := newTestService(&ports.MockExperimentRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*domain.Experiment, error) {
			t.Fatal("storage must not be read")
			return nil, nil
		},
		UpdateStatusFunc: func(ctx context.Context, id string, st domain.ExperimentStatus, at time.Time) error {
			t.Fatal("storage must not be written")
			return nil
		},
	}, nil)

	_, err := svc.UpdateExperimentStatus(context.Background(), "exp-000000000001", "bogus")
	if !errors.Is(err, domain.ErrInvalidExperimentState) {
		t.Fatalf("error = %v, want invalid state", err)
	}
	want := "Invalid status. Must be one of: active, archived, completed, paused"
	if domain.MessageOf(err) != want {
		t.Errorf("message = %q, want %q", domain.MessageOf(err), want)
	}
}

func TestUpdateExperimentStatus_NotFound(t *testing.T) {
	svc := newTestService(nil, nil)
	_, err := svc.UpdateExperimentStatus(context.Background(), "nope", "archived")
	if !errors.Is(err, domain.ErrExperimentNotFound) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestCreateRun(t *testing.T) {
	tests := []struct {
		name        string
		status      domain.ExperimentStatus
		triggeredBy string
		wantKind    domain.Kind
		wantBy      string
	}{
		{"active default trigger", domain.ExperimentActive, "", domain.KindUnknown, "manual"},
		{"active explicit trigger", domain.ExperimentActive, "scheduler", domain.KindUnknown, "scheduler"},
		{"paused", domain.ExperimentPaused, "", domain.KindInvalidExperimentState, ""},
		{"completed", domain.ExperimentCompleted, "", domain.KindInvalidExperimentState, ""},
		{"archived", domain.ExperimentArchived, "", domain.KindInvalidExperimentState, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created := false
			svc := newTestService(&ports.MockExperimentRepository{
				GetByIDFunc: func(ctx context.Context, id string) (*domain.Experiment, error) {
					return experimentWithStatus(tt.status), nil
				},
			}, &ports.MockRlRunRepository{
				CreateFunc: func(ctx context.Context, r *domain.RlRun) error {
					created = true
					r.ID = 7
					return nil
				},
			})

			run, err := svc.CreateRun(context.Background(), "exp-000000000001", CreateRunInput{
				TriggeredBy: tt.triggeredBy,
				RunParams:   map[string]any{"lr": 0.1},
			})
			if tt.wantKind != domain.KindUnknown {
				if domain.KindOf(err) != tt.wantKind {
					t.Fatalf("kind = %v, want %v", domain.KindOf(err), tt.wantKind)
				}
				if created {
					t.Error("run must not be created")
				}
				want := "Cannot create run for experiment in '" + string(tt.status) + "' status"
				if domain.MessageOf(err) != want {
					t.Errorf("message = %q, want %q", domain.MessageOf(err), want)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateRun() error: %v", err)
			}
			if run.ID != 7 || run.Status != domain.RunPending || run.TriggeredBy != tt.wantBy {
				t.Errorf("unexpected run %+v", run)
			}
			if run.ExperimentID != "exp-000000000001" || run.RunParams["lr"] != 0.1 {
				t.Errorf("run not scoped: %+v", run)
			}
		})
	}
}

func TestCreateRun_ExperimentNotFound(t *testing.T) {
	svc := newTestService(nil, nil)
	_, err := svc.CreateRun(context.Background(), "nope", CreateRunInput{})
	if !errors.Is(err, domain.ErrExperimentNotFound) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestListRuns_ExperimentNotFound(t *testing.T) {
	svc := newTestService(nil, &ports.MockRlRunRepository{
		ListByExperimentFunc: func(ctx context.Context, id string) ([]*domain.RlRun, error) {
			t.Fatal("runs must not be listed")
			return nil, nil
		},
	})
	_, err := svc.ListRuns(context.Background(), "nope")
	if !errors.Is(err, domain.ErrExperimentNotFound) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestRunTransitions(t *testing.T) {
	runs := map[int64]*domain.RlRun{}
	runRepo := &ports.MockRlRunRepository{
		GetByIDFunc: func(ctx context.Context, id int64) (*domain.RlRun, error) {
			r, ok := runs[id]
			if !ok {
				return nil, nil
			}
			cp := *r
			return &cp, nil
		},
		UpdateFunc: func(ctx context.Context, r *domain.RlRun, from domain.RunStatus) error {
			if runs[r.ID].Status != from {
				return domain.StaleRunError(r.ID, from)
			}
			cp := *r
			runs[r.ID] = &cp
			return nil
		},
	}
	svc := newTestService(nil, runRepo)
	ctx := context.Background()

	runs[1] = &domain.RlRun{ID: 1, ExperimentID: "exp-000000000001", Status: domain.RunPending}

	if _, err := svc.CompleteRun(ctx, 1, RunCompletion{}); !errors.Is(err, domain.ErrInvalidRunTransition) {
		t.Fatalf("complete from pending: error = %v, want invalid transition", err)
	}

	mv := "policy-v3"
	run, err := svc.StartRun(ctx, 1, &mv)
	if err != nil {
		t.Fatalf("StartRun() error: %v", err)
	}
	if run.Status != domain.RunRunning || run.StartedAt == nil || run.ModelVersion == nil || *run.ModelVersion != mv {
		t.Errorf("unexpected run after start %+v", run)
	}

	generated, consumed := int64(40), int64(12)
	run, err = svc.CompleteRun(ctx, 1, RunCompletion{ConfigsGenerated: &generated, AnswersConsumed: &consumed})
	if err != nil {
		t.Fatalf("CompleteRun() error: %v", err)
	}
	if run.Status != domain.RunCompleted || run.CompletedAt == nil || *run.ConfigsGenerated != 40 || *run.AnswersConsumed != 12 {
		t.Errorf("unexpected run after complete %+v", run)
	}

	if _, err := svc.FailRun(ctx, 1); !errors.Is(err, domain.ErrInvalidRunTransition) {
		t.Errorf("fail from completed: error = %v, want invalid transition", err)
	}

	runs[2] = &domain.RlRun{ID: 2, ExperimentID: "exp-000000000001", Status: domain.RunPending}
	run, err = svc.FailRun(ctx, 2)
	if err != nil {
		t.Fatalf("FailRun() error: %v", err)
	}
	if run.Status != domain.RunFailed || run.StartedAt != nil || run.CompletedAt == nil {
		t.Errorf("unexpected run after fail %+v", run)
	}

	if _, err := svc.StartRun(ctx, 99, nil); !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("missing run: error = %v, want run not found", err)
	}
}

func TestStartRun_ConcurrentWriterLoses(t *testing.T) {
	stored := &domain.RlRun{ID: 1, ExperimentID: "exp-000000000001", Status: domain.RunPending}
	runRepo := &ports.MockRlRunRepository{
		// Both callers read the run before either writes.
		GetByIDFunc: func(ctx context.Context, id int64) (*domain.RlRun, error) {
			return &domain.RlRun{ID: 1, ExperimentID: "exp-000000000001", Status: domain.RunPending}, nil
		},
		UpdateFunc: func(ctx context.Context, r *domain.RlRun, from domain.RunStatus) error {
			if stored.Status != from {
				return domain.StaleRunError(r.ID, from)
			}
			cp := *r
			stored = &cp
			return nil
		},
	}
	svc := newTestService(nil, runRepo)

	if _, err := svc.StartRun(context.Background(), 1, nil); err != nil {
		t.Fatalf("first StartRun() error: %v", err)
	}
	_, err := svc.StartRun(context.Background(), 1, nil)
	if !errors.Is(err, domain.ErrInvalidRunTransition) {
		t.Errorf("second StartRun() error = %v, want invalid run transition", err)
	}
	if stored.Status != domain.RunRunning {
		t.Errorf("stored status = %q, want running", stored.Status)
	}
}
