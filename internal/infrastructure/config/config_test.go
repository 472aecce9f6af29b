package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"CASECONF_DATABASE_BACKEND", "CASECONF_DATABASE_URL", "CASECONF_AUTH_TOKEN",
		"CASECONF_PORT", "CASECONF_LOG_LEVEL", "CASECONF_LOG_FORMAT", "CASECONF_OTEL_ENABLED",
	} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Backend != BackendTurso {
		t.Errorf("Backend = %q, want %q", cfg.Database.Backend, BackendTurso)
	}
	if cfg.Database.URL != "file:caseconf.db" {
		t.Errorf("URL = %q", cfg.Database.URL)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Otel.Enabled {
		t.Error("Otel should be disabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CASECONF_DATABASE_BACKEND", "postgres")
	t.Setenv("CASECONF_DATABASE_URL", "postgres://localhost/caseconf")
	t.Setenv("CASECONF_PORT", "9090")
	t.Setenv("CASECONF_LOG_FORMAT", "json")
	t.Setenv("CASECONF_OTEL_ENABLED", "true")
	t.Setenv("CASECONF_OTEL_ENDPOINT", "localhost:4317")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Backend != BackendPostgres || cfg.Database.URL != "postgres://localhost/caseconf" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Port != 9090 || cfg.Log.Format != "json" {
		t.Errorf("Port/Format = %d/%s", cfg.Port, cfg.Log.Format)
	}
	if !cfg.Otel.Enabled || cfg.Otel.Endpoint != "localhost:4317" {
		t.Errorf("Otel = %+v", cfg.Otel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     App
		wantErr bool
	}{
		{"ok", App{Database: Database{Backend: BackendTurso, URL: "file:x.db"}, Port: 8080}, false},
		{"unknown backend", App{Database: Database{Backend: "mysql", URL: "x"}, Port: 8080}, true},
		{"missing url", App{Database: Database{Backend: BackendPostgres}, Port: 8080}, true},
		{"bad port", App{Database: Database{Backend: BackendTurso, URL: "x"}, Port: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
