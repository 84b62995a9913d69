// Package migrations embeds the view-store schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
