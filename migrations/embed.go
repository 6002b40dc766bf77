// Package migrations embeds SQL migration files into the binary.
//
// Importing this package (usually for side effects) registers the embedded
// files with the database package, so the logger can migrate its store
// without the SQL files present on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/glowmarkt-logger/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
