// Package migrations embeds the queue schema migrations.
package migrations

import "embed"

// FS holds the golang-migrate source files.
//
//go:embed *.sql
var FS embed.FS
