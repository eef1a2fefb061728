package migrations

import "embed"

// FS contains embedded SQLite migrations for table logs and characters.
//
//go:embed *.sql
var FS embed.FS
