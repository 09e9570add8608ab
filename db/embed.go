// Package db embeds the SQL schema migrations.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
