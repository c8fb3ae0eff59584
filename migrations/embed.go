// Package migrations embeds the schema for every supported database driver.
// Files live under a directory named after the driver.
package migrations

import "embed"

// FS holds sqlite3/*.sql and postgres/*.sql.
//
//go:embed sqlite3/*.sql postgres/*.sql
var FS embed.FS
