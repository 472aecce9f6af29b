package turso_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/emiliopalmerini/caseconf/internal/adapters/turso"
	"github.com/emiliopalmerini/caseconf/internal/assignment"
	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/logging"
	"github.com/emiliopalmerini/caseconf/internal/ports"
)

func sampleConfig(email string, caseID int64) *domain.DisplayConfiguration {
	return &domain.DisplayConfiguration{
		ID:        domain.DeriveConfigID(email, caseID, domain.Tags{}),
		UserEmail: email,
		CaseID:    caseID,
		PathConfig: []domain.PathEntry{
			{Path: "Background.abc", Style: domain.PathStyle{Collapse: true, Highlight: true, Top: ptr(1.0)}},
			{Path: "Background", Style: domain.PathStyle{}},
		},
	}
}

func TestDisplayConfigRepository_StageCommit(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := turso.NewDisplayConfigRepository(db)

	batch, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	cfg := sampleConfig("a@x.com", 1)
	inserted, err := batch.Stage(ctx, cfg)
	if err != nil || !inserted {
		t.Fatalf("Stage = %v, %v; want true, nil", inserted, err)
	}
	if err := batch.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := batch.Rollback(ctx); err != nil {
		t.Errorf("Rollback after Commit should be a no-op: %v", err)
	}

	got, err := repo.Get(ctx, cfg.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("Get mismatch (-want +got):\n%s", diff)
	}
}

func TestDisplayConfigRepository_Idempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := turso.NewDisplayConfigRepository(db)
	cfg := sampleConfig("a@x.com", 1)

	for i, wantInserted := range []bool{true, false} {
		batch, err := repo.Begin(ctx)
		if err != nil {
			t.Fatalf("Begin #%d failed: %v", i, err)
		}
		inserted, err := batch.Stage(ctx, cfg)
		if err != nil {
			t.Fatalf("Stage #%d failed: %v", i, err)
		}
		if inserted != wantInserted {
			t.Errorf("Stage #%d inserted = %v, want %v", i, inserted, wantInserted)
		}
		if err := batch.Commit(ctx); err != nil {
			t.Fatalf("Commit #%d failed: %v", i, err)
		}
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM display_config WHERE id = ?`, cfg.ID).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one stored configuration, got %d", count)
	}
}

func TestDisplayConfigRepository_StageFailureIsolated(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := turso.NewDisplayConfigRepository(db)

	batch, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	good := sampleConfig("a@x.com", 1)
	if _, err := batch.Stage(ctx, good); err != nil {
		t.Fatalf("Stage good failed: %v", err)
	}

	bad := sampleConfig("b@x.com", 1)
	bad.ExperimentID = ptr("exp-unknown")
	bad.ID = domain.DeriveConfigID(bad.UserEmail, bad.CaseID, bad.Tags())
	if _, err := batch.Stage(ctx, bad); err == nil {
		t.Fatal("expected foreign key violation")
	}

	after := sampleConfig("c@x.com", 2)
	if _, err := batch.Stage(ctx, after); err != nil {
		t.Fatalf("Stage after failure failed: %v", err)
	}
	if err := batch.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	all, err := repo.List(ctx, ports.ListConfigsOptions{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	ids := make([]string, len(all))
	for i, c := range all {
		ids[i] = c.ID
	}
	if diff := cmp.Diff([]string{"a@x.com-1", "c@x.com-2"}, ids); diff != "" {
		t.Errorf("stored ids mismatch (-want +got):\n%s", diff)
	}
}

func TestDisplayConfigRepository_RollbackDiscards(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := turso.NewDisplayConfigRepository(db)

	batch, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := batch.Stage(ctx, sampleConfig("a@x.com", 1)); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if err := batch.Rollback(ctx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	got, err := repo.Get(ctx, "a@x.com-1")
	if err != nil || got != nil {
		t.Errorf("Get after rollback = %v, %v; want nil, nil", got, err)
	}
}

func TestDisplayConfigRepository_ListFilters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := turso.NewExperimentRepository(db).Create(ctx, newExperiment("exp-000000000001", 0)); err != nil {
		t.Fatalf("failed to seed experiment: %v", err)
	}
	repo := turso.NewDisplayConfigRepository(db)

	tagged := sampleConfig("a@x.com", 2).WithTags(domain.Tags{ExperimentID: ptr("exp-000000000001"), Arm: ptr("control")})
	batch, _ := repo.Begin(ctx)
	for _, c := range []*domain.DisplayConfiguration{sampleConfig("a@x.com", 1), &tagged, sampleConfig("b@x.com", 1)} {
		if _, err := batch.Stage(ctx, c); err != nil {
			t.Fatalf("Stage(%s) failed: %v", c.ID, err)
		}
	}
	if err := batch.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	byUser, err := repo.List(ctx, ports.ListConfigsOptions{UserEmail: ptr("a@x.com")})
	if err != nil || len(byUser) != 2 {
		t.Errorf("List(user) = %d, %v; want 2", len(byUser), err)
	}

	byExp, err := repo.List(ctx, ports.ListConfigsOptions{ExperimentID: ptr("exp-000000000001")})
	if err != nil || len(byExp) != 1 || byExp[0].ID != tagged.ID {
		t.Errorf("List(experiment) = %+v, %v", byExp, err)
	}
	if byExp[0].Arm == nil || *byExp[0].Arm != "control" {
		t.Errorf("arm not persisted: %v", byExp[0].Arm)
	}
}

func TestDisplayConfigRepository_BatchGetSeesStaged(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := turso.NewDisplayConfigRepository(db)

	batch, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer batch.Rollback(ctx)

	cfg := sampleConfig("a@x.com", 1)
	if _, err := batch.Stage(ctx, cfg); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	got, err := batch.Get(ctx, cfg.ID)
	if err != nil {
		t.Fatalf("batch Get failed: %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("batch Get mismatch (-want +got):\n%s", diff)
	}
	missing, err := batch.Get(ctx, "nobody-1")
	if err != nil || missing != nil {
		t.Errorf("batch Get(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestApplyCompiled_ChangedContentUnderSameID(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repos := turso.NewRepositories(db)
	engine := assignment.NewEngine(repos.Experiments, repos.Runs, repos.Configs, nil, logging.Discard())

	original := []domain.DisplayConfiguration{*sampleConfig("a@x.com", 1)}
	changed := *sampleConfig("a@x.com", 1)
	changed.PathConfig = []domain.PathEntry{{Path: "Background.other"}}

	tests := []struct {
		name       string
		configs    []domain.DisplayConfiguration
		wantStatus string
	}{
		{"first apply", original, assignment.StatusAdded},
		{"identical reapply", original, assignment.StatusAdded},
		{"different content", []domain.DisplayConfiguration{changed}, assignment.StatusFailed},
	}
	for _, tt := range tests {
		res, err := engine.ApplyCompiled(ctx, tt.configs, domain.Tags{})
		if err != nil {
			t.Fatalf("%s: ApplyCompiled error: %v", tt.name, err)
		}
		if got := res.Results[0].Status; got != tt.wantStatus {
			t.Errorf("%s: status = %q, want %q (%+v)", tt.name, got, tt.wantStatus, res.Results[0])
		}
	}

	stored, err := repos.Configs.Get(ctx, original[0].ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if diff := cmp.Diff(original[0].PathConfig, stored.PathConfig); diff != "" {
		t.Errorf("stored path config changed (-want +got):\n%s", diff)
	}
}
