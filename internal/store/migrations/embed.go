package migrations

import "embed"

// FS contains embedded SQLite migrations for the local attempt store.
//
//go:embed *.sql
var FS embed.FS
