// Package migrations содержит SQL-миграции схемы для golang-migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
