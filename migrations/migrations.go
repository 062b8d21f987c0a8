// Package migrations embeds the forward-only SQL schema files applied at
// startup by database.RunMigrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
