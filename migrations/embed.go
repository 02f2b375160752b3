// Package migrations embeds the SQL schema owned by the cascade engine.
package migrations

import "embed"

// FS holds the goose migration files.
//
//go:embed *.sql
var FS embed.FS
