// Package migrations embeds the SQL schema migrations into the binary.
package migrations

import "embed"

// FS holds every *.sql file in this directory at its root.
// Pass it to database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
