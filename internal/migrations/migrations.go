// Package migrations embeds the schema of the book table, one directory per database type.
package migrations

import "embed"

// FS holds the sqlite, mysql and postgres migration directories.
//
//go:embed sqlite mysql postgres
var FS embed.FS
