// Package db opens the relational store backing every other package in
// this service (workflows, skills, executions, sessions, quotas,
// automation). It supports two interchangeable backends — MySQL for
// production, SQLite for development and tests — mirroring the teacher's
// dual graph/store.SQLiteStore / graph/store.MySQLStore split (graph/store/
// sqlite.go, graph/store/mysql.go), generalized from per-run workflow-state
// persistence to the full relational schema spec.md §3 implies.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/toolforge/agentgraph/internal/config"
)

// DB wraps a *sql.DB along with the dialect it was opened with, since a
// handful of statements (UPSERT syntax, placeholder style) differ between
// MySQL and SQLite.
type DB struct {
	*sql.DB
	Driver string
}

// Open connects to the configured backend, applies pragmas/pool settings
// appropriate to that driver, and runs the schema migration.
func Open(ctx context.Context, cfg *config.Config) (*DB, error) {
	sqlDB, err := sql.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DatabaseDriver, err)
	}

	switch cfg.DatabaseDriver {
	case "sqlite":
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		if _, err := sqlDB.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		if _, err := sqlDB.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
		if _, err := sqlDB.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	case "mysql":
		sqlDB.SetMaxOpenConns(16)
		sqlDB.SetMaxIdleConns(4)
	default:
		_ = sqlDB.Close()
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	d := &DB{DB: sqlDB, Driver: cfg.DatabaseDriver}
	if err := d.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return d, nil
}

// UpsertIgnore runs an insert-or-skip statement, picking sqliteSQL's
// "ON CONFLICT ... DO NOTHING" form or mysqlSQL's "INSERT IGNORE" form to
// match how d was opened. Callers that only ever run against one backend
// family in practice (most of this service targets SQLite in dev, MySQL in
// production) still write both so the statement is correct either way,
// mirroring the teacher's SQLiteStore/MySQLStore split at the call site
// instead of duplicating it per caller.
func (d *DB) UpsertIgnore(ctx context.Context, sqliteSQL, mysqlSQL string, args ...interface{}) (sql.Result, error) {
	if d.Driver == "mysql" {
		return d.ExecContext(ctx, mysqlSQL, args...)
	}
	return d.ExecContext(ctx, sqliteSQL, args...)
}

// migrate creates every table this service needs if it doesn't already
// exist, picking the DDL dialect that matches how DB was opened.
func (d *DB) migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if d.Driver == "mysql" {
		stmts = mysqlSchema
	}
	for _, stmt := range stmts {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration statement: %w\n%s", err, stmt)
		}
	}
	return nil
}
