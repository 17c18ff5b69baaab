// Package store provides a SQLite-backed library of keyboard layouts.
package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration is one step of the schema. Up and Down are SQL scripts.
type Migration struct {
	Version     int
	Description string
	Up, Down    string
}

// migrations are listed in order; Version equals the index plus one.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema with layouts",
		Up:          migrationV1Up,
		Down:        migrationV1Down,
	},
	{
		Version:     2,
		Description: "Add sequences table for dead sequence lookup",
		Up:          migrationV2Up,
		Down:        migrationV2Down,
	},
	{
		Version:     3,
		Description: "Add source column for layouts imported from files",
		Up:          migrationV3Up,
		Down:        migrationV3Down,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS layouts (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    name            TEXT NOT NULL UNIQUE,
    document        BLOB NOT NULL,
    fingerprint     BLOB NOT NULL,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_layouts_fingerprint ON layouts(fingerprint);
`

const migrationV1Down = `
DROP INDEX IF EXISTS idx_layouts_fingerprint;
DROP TABLE IF EXISTS layouts;
`

const migrationV2Up = `
CREATE TABLE IF NOT EXISTS sequences (
    layout_id   INTEGER NOT NULL REFERENCES layouts(id) ON DELETE CASCADE,
    modifier    INTEGER NOT NULL,
    keys        TEXT NOT NULL,
    keys_folded TEXT NOT NULL,
    output      TEXT NOT NULL,
    PRIMARY KEY (layout_id, modifier, keys)
);

CREATE INDEX IF NOT EXISTS idx_sequences_keys ON sequences(keys_folded);
`

const migrationV2Down = `
DROP INDEX IF EXISTS idx_sequences_keys;
DROP TABLE IF EXISTS sequences;
`

const migrationV3Up = `
ALTER TABLE layouts ADD COLUMN source TEXT NOT NULL DEFAULT '';
CREATE INDEX IF NOT EXISTS idx_layouts_source ON layouts(source);
`

const migrationV3Down = `
DROP INDEX IF EXISTS idx_layouts_source;
ALTER TABLE layouts DROP COLUMN source;
`

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     INTEGER PRIMARY KEY,
    applied_at  INTEGER NOT NULL,
    description TEXT
)`

func schemaVersion(q interface {
	QueryRow(query string, args ...any) *sql.Row
}) (int, error) {
	var v int
	if err := q.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// inTx runs fn in a transaction that is rolled back unless fn succeeds.
func inTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// MigrateDB brings the schema up to the latest version. Each migration
// runs in its own transaction together with its bookkeeping row.
func MigrateDB(db *sql.DB) error {
	if _, err := db.Exec(createMigrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	current, err := schemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		err := inTx(db, func(tx *sql.Tx) error {
			if _, err := tx.Exec(m.Up); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
			}
			_, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at, description)
				VALUES (?, ?, ?)`, m.Version, time.Now().UnixNano(), m.Description)
			return err
		})
		if err != nil {
			return fmt.Errorf("migrate to version %d: %w", m.Version, err)
		}
	}
	return nil
}

// RollbackMigration reverts the most recently applied migration.
func RollbackMigration(db *sql.DB) error {
	current, err := schemaVersion(db)
	if err != nil {
		return err
	}
	if current == 0 {
		return fmt.Errorf("store: schema has no migrations applied")
	}
	if current > len(migrations) {
		return fmt.Errorf("store: schema version %d is newer than this program", current)
	}
	m := migrations[current-1]

	return inTx(db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(m.Down); err != nil {
			return fmt.Errorf("revert migration %d: %w", m.Version, err)
		}
		_, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", m.Version)
		return err
	})
}

// MigrationStatus describes which migrations have been applied.
type MigrationStatus struct {
	CurrentVersion int
	LatestVersion  int
	Applied        []AppliedMigration
	Pending        []Migration
}

// AppliedMigration is a row of the schema_migrations table.
type AppliedMigration struct {
	Version     int
	Description string
	AppliedAt   time.Time
}

// GetMigrationStatus lists applied and pending migrations. A database
// without the bookkeeping table reports everything as pending.
func GetMigrationStatus(db *sql.DB) (*MigrationStatus, error) {
	status := &MigrationStatus{LatestVersion: len(migrations)}

	rows, err := db.Query("SELECT version, description, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		status.Pending = migrations
		return status, nil
	}
	defer rows.Close()

	for rows.Next() {
		var a AppliedMigration
		var at int64
		if err := rows.Scan(&a.Version, &a.Description, &at); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		a.AppliedAt = time.Unix(0, at)
		status.Applied = append(status.Applied, a)
		status.CurrentVersion = max(status.CurrentVersion, a.Version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}

	for _, m := range migrations {
		if m.Version > status.CurrentVersion {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

// ValidateSchema reports the first table the layout library needs that is
// missing.
func ValidateSchema(db *sql.DB) error {
	for _, table := range []string{"layouts", "sequences", "schema_migrations"} {
		var n int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
		if err != nil {
			return fmt.Errorf("look up table %s: %w", table, err)
		}
		if n == 0 {
			return fmt.Errorf("store: table %s is missing", table)
		}
	}
	return nil
}
