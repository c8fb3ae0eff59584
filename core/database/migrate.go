package database

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/cargobot/core/logger"
)

// RunMigrations applies every up migration found in the driver named
// sub-directory of migrations (for example "sqlite3/0001_init.up.sql").
// The caller keeps ownership of db.
func RunMigrations(cfg Config, db *sqlx.DB, migrations fs.FS) error {
	if err := cfg.Normalize(); err != nil {
		return err
	}
	files := listMigrationFiles(migrations, cfg.Driver)
	logger.MIG.Debug("migrations resolved",
		slog.String("event", "resolve"),
		slog.String("driver", cfg.Driver),
		slog.Int("files_total", len(files)),
		slog.String("files_preview", preview(files, 6)),
	)

	src, err := iofs.New(migrations, cfg.Driver)
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}
	defer src.Close()

	var drv migratedb.Driver
	switch cfg.Driver {
	case DriverPostgres:
		drv, err = postgres.WithInstance(db.DB, &postgres.Config{})
	default:
		drv, err = sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	}
	if err != nil {
		return fmt.Errorf("migrations driver: %w", err)
	}
	// m.Close would close db as well, so it is intentionally never called.
	m, err := migrate.NewWithInstance("iofs", src, cfg.Driver, drv)
	if err != nil {
		logger.MIG.Error("init failed",
			slog.String("event", "db.migrate"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	fromVer, _, _ := m.Version()
	start := time.Now()
	upErr := m.Up()
	took := logger.Took(start)
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logger.MIG.Error("migration failed",
			slog.String("event", "apply"),
			slog.String("status", "fail"),
			slog.String("err", upErr.Error()),
			slog.Duration("duration", took),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}
	toVer, _, _ := m.Version()

	applied := selectApplied(files, uint64(fromVer), uint64(toVer))
	logger.MIG.Info("migrations summary",
		slog.String("event", "summary"),
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(fromVer)),
		slog.Uint64("to_ver", uint64(toVer)),
		slog.Int("files", len(applied)),
		slog.String("files_preview", preview(applied, 6)),
		slog.Duration("duration", took),
	)
	return nil
}

func listMigrationFiles(fsys fs.FS, dir string) []string {
	matches, err := fs.Glob(fsys, dir+"/*.up.sql")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimPrefix(m, dir+"/"))
	}
	return names
}

func parseVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

func selectApplied(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		if v := parseVersion(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}

func preview(values []string, limit int) string {
	if len(values) > limit {
		return strings.Join(values[:limit], ", ") + ", ..."
	}
	return strings.Join(values, ", ")
}
