package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

const prefix = "CASECONF"

const (
	BackendTurso    = "turso"
	BackendPostgres = "postgres"
)

// Database selects and locates the configuration store.
type Database struct {
	Backend   string `envconfig:"DATABASE_BACKEND" default:"turso"`
	URL       string `envconfig:"DATABASE_URL" default:"file:caseconf.db"`
	AuthToken string `envconfig:"AUTH_TOKEN"`
}

// Log controls the process logger.
type Log struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"text"`
}

// Otel holds OTLP metrics exporter settings.
type Otel struct {
	Enabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	Endpoint string `envconfig:"OTEL_ENDPOINT"`
	Insecure bool   `envconfig:"OTEL_INSECURE" default:"false"`
}

// App is the full process configuration.
type App struct {
	Database Database `ignored:"true"`
	Log      Log      `ignored:"true"`
	Otel     Otel     `ignored:"true"`
	Port     int      `envconfig:"PORT" default:"8080"`
}

// Load reads CASECONF_* environment variables.
func Load() (*App, error) {
	var cfg App
	if err := envconfig.Process(prefix, &cfg.Database); err != nil {
		return nil, err
	}
	if err := envconfig.Process(prefix, &cfg.Log); err != nil {
		return nil, err
	}
	if err := envconfig.Process(prefix, &cfg.Otel); err != nil {
		return nil, err
	}
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *App) Validate() error {
	switch c.Database.Backend {
	case BackendTurso, BackendPostgres:
	default:
		return fmt.Errorf("unknown database backend %q (want %s or %s)", c.Database.Backend, BackendTurso, BackendPostgres)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("%s_DATABASE_URL is required", prefix)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}
