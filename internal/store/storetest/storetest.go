// Package storetest opens throwaway SQLite stores with the real schema.
package storetest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/cargobot/core/database"
	"github.com/m3rciful/cargobot/internal/store"
	"github.com/m3rciful/cargobot/migrations"
)

// New returns a migrated store backed by a file in t.TempDir.
func New(t testing.TB) *store.Store {
	t.Helper()
	cfg := database.Config{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "cargobot.db")}
	db, err := database.Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(cfg, db, migrations.FS))
	return store.New(db)
}
