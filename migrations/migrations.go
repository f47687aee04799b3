// Package migrations embeds the SQLite schema of the backup history.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
