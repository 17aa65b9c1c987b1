// Package migrations embeds the PostgreSQL schema of the remote namespace.
package migrations

import "embed"

//go:embed schema/*.sql
var FS embed.FS

// Dir is the directory inside FS holding the migration files.
const Dir = "schema"
