// Package migrations embute o esquema SQL aplicado pelo sql-migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
