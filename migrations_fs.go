package broker

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the broker schema, one directory per dialect under
// data/sql/migrations.
//
//go:embed data/sql/migrations/postgres/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

func GetMigrationsFS() fs.FS {
	return migrationsFS
}
