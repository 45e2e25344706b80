// Package migrations embeds the SQLite schema migrations applied by goose
// on startup.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
