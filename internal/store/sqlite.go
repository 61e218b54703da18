package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// NewSQLite opens the file-backed datasource at path, per spec.md's
// file-backed store. Mirrors the teacher's pkg/database split between a
// read pool (up to 25 connections, WAL mode tolerates concurrent
// readers) and a single dedicated write connection serializing all
// writes, which sidesteps SQLITE_BUSY under modernc.org/sqlite.
func NewSQLite(path string) *sqlStore {
	return &sqlStore{
		dialect:  "sqlite",
		dsn:      path,
		migFiles: sqliteMigrationFiles,
		migDir:   "migrations/sqlite",
	}
}

func (s *sqlStore) Connect(ctx context.Context) error {
	if s.dialect != "sqlite" {
		return s.connectPostgres(ctx)
	}
	return s.connectSQLite(ctx)
}

func (s *sqlStore) connectSQLite(ctx context.Context) error {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", s.dsn)

	readDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("store: open sqlite read pool: %w", err)
	}
	readDB.SetMaxOpenConns(25)

	writeDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		readDB.Close()
		return fmt.Errorf("store: open sqlite write conn: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	if err := writeDB.PingContext(ctx); err != nil {
		readDB.Close()
		writeDB.Close()
		return fmt.Errorf("store: ping sqlite: %w", err)
	}

	if err := runMigrations(writeDB, s.dialect, s.migFiles, s.migDir); err != nil {
		readDB.Close()
		writeDB.Close()
		return err
	}

	s.readDB = readDB
	s.writeDB = writeDB
	return nil
}

// ResetSequences is a no-op on SQLite: every primary key in this schema
// is an externally-assigned Discord snowflake, never an
// AUTOINCREMENT-managed rowid, so there is no sequence counter to repair
// after a transfer lands explicit-PK rows.
func (s *sqlStore) resetSequencesSQLite(ctx context.Context) error {
	return nil
}
