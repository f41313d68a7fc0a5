// Package migrations embeds the goose SQL migrations for pgadapter,
// mirroring the udisondev-la2go pattern of an embedded migrations.FS
// handed to goose.SetBaseFS.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
