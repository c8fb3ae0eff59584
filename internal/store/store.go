// Package store persists users, shipments, favorites and the status audit
// trail with sqlx. Queries are written with "?" placeholders and rebound for
// the active driver.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/m3rciful/cargobot/core/database"
	"github.com/m3rciful/cargobot/internal/shipment"
)

// ErrDuplicateID reports a primary key collision on insert.
var ErrDuplicateID = errors.New("store: duplicate id")

// Store is the single source of truth for shipment data.
type Store struct {
	db     *sqlx.DB
	driver string
	now    func() time.Time
}

// New wraps an open database. The driver name decides locking and placeholders.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, driver: db.DriverName(), now: func() time.Time { return time.Now().UTC() }}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) q(query string) string { return s.db.Rebind(query) }

// forUpdate appends a row lock where the driver supports it. SQLite
// serializes writers on its single connection instead.
func (s *Store) forUpdate() string {
	if s.driver == database.DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// inTx runs fn in a transaction and rolls back on any error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, shipment.ErrNotFound)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
