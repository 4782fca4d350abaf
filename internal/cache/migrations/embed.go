// Package migrations embeds the cache schema migrations.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
