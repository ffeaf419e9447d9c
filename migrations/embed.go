// Package migrations embeds SQL migration files for use at runtime.
// Migrations are embedded so they work regardless of working directory.
package migrations

import "embed"

// FS is the embedded migrations filesystem.
// Contains the Postgres schema files in this directory, applied in
// filename order by storage.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
