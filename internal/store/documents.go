package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("document does not exist in store")

// Revision is a snapshot of a document's serialized content.
type Revision struct {
	ID        string
	Key       string
	Content   string
	CreatedAt time.Time
}

// Save stores content under key and records a revision. Saving content
// identical to the current one is a no-op and reports false.
func (s *Store) Save(ctx context.Context, key, content string) (bool, error) {
	tx, err := s.Conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT content FROM documents WHERE key = ?`, key).Scan(&current)
	switch {
	case err == nil && current == content:
		return false, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("failed to read document: %w", err)
	}

	if err := writeTx(ctx, tx, key, content); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

func writeTx(ctx context.Context, tx *sql.Tx, key, content string) error {
	now := time.Now().UnixNano()
	upsertSQL := `
		INSERT INTO documents (key, content, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			content = excluded.content,
			updated_at = excluded.updated_at;
	`
	if _, err := tx.ExecContext(ctx, upsertSQL, key, content, now); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	insertRevisionSQL := `
		INSERT INTO revisions (id, key, content, created_at)
		VALUES (?, ?, ?, ?);
	`
	if _, err := tx.ExecContext(ctx, insertRevisionSQL, uuid.NewString(), key, content, now); err != nil {
		return fmt.Errorf("failed to record revision: %w", err)
	}
	return nil
}

// Load returns the current content stored under key.
func (s *Store) Load(ctx context.Context, key string) (string, error) {
	var content string
	err := s.Conn.QueryRowContext(ctx, `SELECT content FROM documents WHERE key = ?`, key).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	} else if err != nil {
		return "", fmt.Errorf("failed to load document: %w", err)
	}
	return content, nil
}

// Keys lists every stored document key in order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.Conn.QueryContext(ctx, `SELECT key FROM documents ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// History returns up to limit revisions of key, newest first. A limit of
// zero or less returns all of them.
func (s *Store) History(ctx context.Context, key string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.Conn.QueryContext(ctx, `
		SELECT id, key, content, created_at
		FROM revisions
		WHERE key = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?;
	`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}
	defer rows.Close()

	var revs []Revision
	for rows.Next() {
		var rev Revision
		var created int64
		if err := rows.Scan(&rev.ID, &rev.Key, &rev.Content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		rev.CreatedAt = time.Unix(0, created)
		revs = append(revs, rev)
	}
	return revs, rows.Err()
}

// Revert makes the content of revision id current again and records that
// as a new revision. It returns the restored content.
func (s *Store) Revert(ctx context.Context, key, id string) (string, error) {
	tx, err := s.Conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var content string
	err = tx.QueryRowContext(ctx, `SELECT content FROM revisions WHERE key = ? AND id = ?`, key, id).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("revision %s of %s: %w", id, key, ErrNotFound)
	} else if err != nil {
		return "", fmt.Errorf("failed to read revision: %w", err)
	}

	if err := writeTx(ctx, tx, key, content); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return content, nil
}

// Delete removes the document and its history.
func (s *Store) Delete(ctx context.Context, key string) error {
	tx, err := s.Conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM revisions WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete revisions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
