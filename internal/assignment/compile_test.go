package assignment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/logging"
	"github.com/emiliopalmerini/caseconf/internal/ports"
)

func TestCompile_RecordsOutcome(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		want    ports.CompileMetrics
	}{
		{
			name: "ok",
			input: "User,Case No.,Path,Collapse,Highlight,Top\n" +
				"a@x.com,1,Background.abc,true,false,1\n" +
				"a@x.com,1,Background,,,\n" +
				"b@x.com,2,Background,,,\n",
			want: ports.CompileMetrics{Rows: 3, Configurations: 2},
		},
		{
			name:    "invalid case",
			input:   "User,Case No.,Path,Collapse,Highlight,Top\na@x.com,abc,Background,,,\n",
			wantErr: domain.ErrInvalidCaseID,
			want:    ports.CompileMetrics{Rows: 1, Failed: true, ErrorKind: "invalid_case_id"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, nil)
			_, err := f.engine.Compile(context.Background(), strings.NewReader(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}
			if diff := cmp.Diff([]ports.CompileMetrics{tt.want}, f.metrics.compiles); diff != "" {
				t.Errorf("compile metrics mismatch (-want +got):\n%s", diff)
			}
			if f.begun != 0 {
				t.Error("compiling must not open a unit of work")
			}
		})
	}
}

func TestCompile_NilMetrics(t *testing.T) {
	engine := NewEngine(nil, nil, nil, nil, logging.Discard())
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"ok", "User,Case No.,Path,Collapse,Highlight,Top\na@x.com,1,Background,,,\n", false},
		{"invalid", "User,Case No.,Path,Collapse,Highlight,Top\na@x.com,abc,Background,,,\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Compile(context.Background(), strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("Compile() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
