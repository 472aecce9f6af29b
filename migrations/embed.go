// Package migrations embeds the numbered libSQL schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
