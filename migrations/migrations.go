// Package migrations embeds the schema the tool reads and writes.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files, applied in file name order.
//
//go:embed *.sql
var FS embed.FS
