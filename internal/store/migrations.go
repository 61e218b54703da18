package store

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrationFiles embed.FS

//go:embed migrations/postgres/*.sql
var postgresMigrationFiles embed.FS

// migration is one versioned schema step, following the teacher's
// embedded-filesystem migration layout (pkg/database/migrations.go):
// numeric-prefixed filenames applied in order, tracked in a
// schema_migrations table so re-running Connect is a no-op.
type migration struct {
	version int
	name    string
	sql     string
}

func loadMigrations(fsys embed.FS, dir string) ([]migration, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("store: read migrations dir %s: %w", dir, err)
	}

	var out []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			continue
		}
		parts := strings.SplitN(entry.Name(), "_", 2)
		if len(parts) != 2 {
			continue
		}
		content, err := fsys.ReadFile(dir + "/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("store: read migration %s: %w", entry.Name(), err)
		}
		out = append(out, migration{
			version: version,
			name:    strings.TrimSuffix(parts[1], ".sql"),
			sql:     string(content),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// recordMigrationSQL returns the dialect's placeholder form for the
// schema_migrations insert, matching the '?' vs '$N' split used
// throughout sqlStore's query building.
func recordMigrationSQL(dialect string) string {
	if dialect == "postgres" {
		return "INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, $3)"
	}
	return "INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)"
}

func runMigrations(db *sql.DB, dialect string, fsys embed.FS, dir string) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at BIGINT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("store: init schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}

	migrations, err := loadMigrations(fsys, dir)
	if err != nil {
		return err
	}

	insertSQL := recordMigrationSQL(dialect)
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("store: begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: apply migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(insertSQL, m.version, m.name, nowMillis()); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: commit migration %d: %w", m.version, err)
		}
	}

	return nil
}
