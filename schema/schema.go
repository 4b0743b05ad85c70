// Package schema embeds the SQL migrations of both store backends and applies
// the pending ones in order.
package schema

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Dialect selects the migration set and placeholder style.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// MigrationRunner handles database migrations
type MigrationRunner struct {
	db         *sql.DB
	dialect    Dialect
	migrations []Migration
}

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(db *sql.DB, dialect Dialect) (*MigrationRunner, error) {
	migrations, err := Load(dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	return &MigrationRunner{db: db, dialect: dialect, migrations: migrations}, nil
}

// Load reads the embedded migrations of a dialect, sorted by version.
func Load(dialect Dialect) ([]Migration, error) {
	switch dialect {
	case Postgres, SQLite:
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dialect)
	}
	dir := "migrations/" + string(dialect)

	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := fs.ReadFile(migrationsFS, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		// "001_initial.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return nil, fmt.Errorf("invalid migration filename %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version: version,
			Name:    entry.Name(),
			SQL:     string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Run executes all pending migrations
func (mr *MigrationRunner) Run(ctx context.Context) error {
	if err := mr.createSchemaVersionTable(ctx); err != nil {
		return fmt.Errorf("failed to create schema version table: %w", err)
	}

	current, err := mr.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, migration := range mr.migrations {
		if migration.Version <= current {
			continue
		}
		if err := mr.runMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", migration.Name, err)
		}
	}
	return nil
}

// Latest is the highest version known to the runner.
func (mr *MigrationRunner) Latest() int {
	if len(mr.migrations) == 0 {
		return 0
	}
	return mr.migrations[len(mr.migrations)-1].Version
}

func (mr *MigrationRunner) createSchemaVersionTable(ctx context.Context) error {
	now := "CURRENT_TIMESTAMP"
	if mr.dialect == Postgres {
		now = "NOW()"
	}
	query := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT ` + now + `
		)
	`
	_, err := mr.db.ExecContext(ctx, query)
	return err
}

// Version returns the current schema version, zero before any migration.
func (mr *MigrationRunner) Version(ctx context.Context) (int, error) {
	var version int
	err := mr.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// runMigration runs a single migration in a transaction
func (mr *MigrationRunner) runMigration(ctx context.Context, migration Migration) error {
	tx, err := mr.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	record := "INSERT INTO schema_version (version, name) VALUES ($1, $2)"
	if mr.dialect == SQLite {
		record = "INSERT INTO schema_version (version, name) VALUES (?, ?)"
	}
	if _, err := tx.ExecContext(ctx, record, migration.Version, migration.Name); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
