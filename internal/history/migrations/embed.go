package migrations

import "embed"

// Files contains the history schema migrations in ascending order by filename.
//
//go:embed *.sql
var Files embed.FS
