package database

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"
)

// Client wraps a libSQL connection pool with Turso-specific retry logic.
type Client struct {
	*sql.DB
}

// Options configures the database client behavior.
type Options struct {
	Ping bool
}

// New opens a client with default options (ping enabled).
func New(ctx context.Context, databaseURL, authToken string) (*Client, error) {
	return NewWithOptions(ctx, databaseURL, authToken, Options{Ping: true})
}

// NewWithOptions opens a client. Local "file:" URLs need no token and use a
// single connection so in-memory and shared-cache databases stay consistent.
func NewWithOptions(ctx context.Context, databaseURL, authToken string, opts Options) (*Client, error) {
	if databaseURL == "" {
		return nil, errors.New("database url is required")
	}

	db, err := sql.Open("libsql", connString(databaseURL, authToken))
	if err != nil {
		return nil, err
	}

	if IsLocal(databaseURL) {
		db.SetMaxOpenConns(1)
	} else {
		// Turso closes idle Hrana streams aggressively, so keep no idle connections.
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(0)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(0)
	}

	if IsLocal(databaseURL) {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if opts.Ping {
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &Client{DB: db}, nil
}

// IsLocal reports whether the URL addresses a local file or memory database.
func IsLocal(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "file:")
}

func connString(databaseURL, authToken string) string {
	if authToken == "" || IsLocal(databaseURL) {
		return databaseURL
	}
	sep := "?"
	if strings.Contains(databaseURL, "?") {
		sep = "&"
	}
	return databaseURL + sep + "authToken=" + url.QueryEscape(authToken)
}

// IsStreamError checks if an error is a Turso "stream not found" error.
func IsStreamError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "stream not found")
}

// WithRetry executes fn, retrying up to maxRetries times on Turso stream errors.
func WithRetry[T any](ctx context.Context, maxRetries int, fn func() (T, error)) (T, error) {
	var result T
	var err error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}

		if !IsStreamError(err) || attempt == maxRetries {
			return result, err
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}

	return result, err
}
