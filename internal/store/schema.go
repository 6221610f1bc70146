// Package store persists serialized documents and their revision history
// in SQLite.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Database schema version
const SchemaVersion = 1

type Store struct {
	Conn *sql.DB
}

// Open initializes a SQLite connection at dbPath and creates the tables if
// they don't exist.
func Open(dbPath string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// autosave and editor requests write concurrently
	conn.SetMaxOpenConns(1)

	s := &Store{Conn: conn}
	if err := s.setup(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}
	return s, nil
}

// OpenReadonly opens an existing store in read-only mode, waiting up to
// timeoutMs for locks held by a running server.
func OpenReadonly(dbPath string, timeoutMs int) (*Store, error) {
	connStr := fmt.Sprintf("file:%s?mode=ro&_timeout=%d", dbPath, timeoutMs)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database in read-only mode: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to SQLite database in read-only mode: %w", err)
	}
	return &Store{Conn: conn}, nil
}

func (s *Store) setup() error {
	tx, err := s.Conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := createTables(tx); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, SchemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func createTables(tx *sql.Tx) error {
	createDocumentsTableSQL := `
	CREATE TABLE IF NOT EXISTS documents (
		key TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := tx.Exec(createDocumentsTableSQL); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	createRevisionsTableSQL := `
	CREATE TABLE IF NOT EXISTS revisions (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS revisions_key ON revisions (key);`
	if _, err := tx.Exec(createRevisionsTableSQL); err != nil {
		return fmt.Errorf("failed to create revisions table: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.Conn.Close()
}
