package migrations

import "embed"

// FS contains embedded SQLite migrations for room and stats storage.
//
//go:embed *.sql
var FS embed.FS
