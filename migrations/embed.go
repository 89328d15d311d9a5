// Package migrations embeds the SQLite schema for the usage store
package migrations

import "embed"

// FS holds every numbered migration file
//
//go:embed *.sql
var FS embed.FS
