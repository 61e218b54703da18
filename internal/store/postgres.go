package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// NewPostgres opens the server-backed datasource at dsn, per spec.md's
// server-backed store. Postgres tolerates concurrent writers natively,
// so unlike NewSQLite it opens a single pool of up to 25 connections,
// and sqlStore's readDB and writeDB both point at that one *sql.DB.
func NewPostgres(dsn string) *sqlStore {
	return &sqlStore{
		dialect:  "postgres",
		dsn:      dsn,
		migFiles: postgresMigrationFiles,
		migDir:   "migrations/postgres",
	}
}

func (s *sqlStore) connectPostgres(ctx context.Context) error {
	readDB, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return fmt.Errorf("store: open postgres read pool: %w", err)
	}
	readDB.SetMaxOpenConns(25)

	if err := readDB.PingContext(ctx); err != nil {
		readDB.Close()
		return fmt.Errorf("store: ping postgres: %w", err)
	}

	if err := runMigrations(readDB, s.dialect, s.migFiles, s.migDir); err != nil {
		readDB.Close()
		return err
	}

	s.readDB = readDB
	s.writeDB = readDB
	return nil
}

// resetSequencesPostgres repairs every integer sequence tied to a
// column in Tables via pg_get_serial_sequence, so a column that later
// gains a SERIAL/IDENTITY default keeps working after a transfer lands
// rows with explicit PKs. reaction is skipped: its key is composite and
// it has no id column. Against this schema, every other primary key is
// an externally-assigned snowflake with no owned sequence, so
// pg_get_serial_sequence returns NULL for each table and every
// statement below is a no-op.
func (s *sqlStore) resetSequencesPostgres(ctx context.Context) error {
	for _, t := range Tables {
		if t == TableReaction {
			continue
		}
		_, err := s.exec(ctx, `
			SELECT setval(
				pg_get_serial_sequence(?, 'id'),
				COALESCE((SELECT MAX(id) FROM `+string(t)+`), 1),
				true
			)
			WHERE pg_get_serial_sequence(?, 'id') IS NOT NULL
		`, string(t), string(t))
		if err != nil {
			return fmt.Errorf("store: reset sequence for %s: %w", t, err)
		}
	}
	return nil
}

func (s *sqlStore) ResetSequences(ctx context.Context) error {
	if s.dialect == "postgres" {
		return s.resetSequencesPostgres(ctx)
	}
	return s.resetSequencesSQLite(ctx)
}
