package migrations

import "embed"

// FS contains embedded SQLite migrations for publishing storage.
//
//go:embed *.sql
var FS embed.FS
