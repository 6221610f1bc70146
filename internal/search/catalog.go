package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"mentions/internal/document"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/errgroup"
)

// Catalog schema version
const CatalogVersion = 1

// Catalog is a SQLite-backed entity catalog.
type Catalog struct {
	Conn  *sql.DB
	limit int
}

// OpenCatalog opens (and if needed creates) the catalog at dbPath. limit is
// the maximum number of candidates returned per category.
func OpenCatalog(dbPath string, limit int) (*Catalog, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	if limit <= 0 {
		limit = 10
	}
	c := &Catalog{Conn: conn, limit: limit}
	if err := c.setup(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set up catalog: %w", err)
	}
	return c, nil
}

func (c *Catalog) setup() error {
	tx, err := c.Conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	createEntities := `
	CREATE TABLE IF NOT EXISTS entities (
		category TEXT NOT NULL,
		id INTEGER NOT NULL,
		name TEXT NOT NULL,
		icon TEXT NOT NULL DEFAULT '',
		secondary_id INTEGER NOT NULL DEFAULT 0,
		kind TEXT NOT NULL DEFAULT '',
		class TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (category, id)
	);
	CREATE INDEX IF NOT EXISTS entities_name ON entities (category, name COLLATE NOCASE);
	`
	if _, err := tx.Exec(createEntities); err != nil {
		return fmt.Errorf("failed to create entities table: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, CatalogVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return tx.Commit()
}

// Upsert inserts or replaces catalog entries.
func (c *Catalog) Upsert(ctx context.Context, entries ...Candidate) error {
	tx, err := c.Conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsertSQL := `
		INSERT INTO entities (category, id, name, icon, secondary_id, kind, class)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (category, id) DO UPDATE SET
			name = excluded.name,
			icon = excluded.icon,
			secondary_id = excluded.secondary_id,
			kind = excluded.kind,
			class = excluded.class;
	`
	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := e.Token(); err != nil {
			return fmt.Errorf("invalid catalog entry %q: %w", e.Name, err)
		}
		_, err := stmt.ExecContext(ctx,
			e.Category.String(), e.ID, e.Name, e.Icon, e.SecondaryID, e.Kind, e.Class)
		if err != nil {
			return fmt.Errorf("failed to upsert %s %d: %w", e.Category, e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Count returns the number of catalog entries.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	err := c.Conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n)
	return n, err
}

// Search looks the query up in every category concurrently. Substring
// matches come first (prefix matches ahead of the rest); when they do not
// fill the per-category limit, names within typo distance are added.
// An empty query has no results.
func (c *Catalog) Search(ctx context.Context, query string) (Results, error) {
	query = strings.TrimSpace(query)
	var res Results
	if query == "" {
		return res, nil
	}

	found := make([][]Candidate, len(document.Categories))
	g, ctx := errgroup.WithContext(ctx)
	for i, category := range document.Categories {
		g.Go(func() error {
			candidates, err := c.searchCategory(ctx, category, query)
			if err != nil {
				return fmt.Errorf("search %s: %w", category, err)
			}
			found[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Results{}, err
	}
	for i, category := range document.Categories {
		res.set(category, found[i])
	}
	return res, nil
}

func (c *Catalog) searchCategory(ctx context.Context, category document.Category, query string) ([]Candidate, error) {
	escaped := escapeLike(query)
	rows, err := c.Conn.QueryContext(ctx, `
		SELECT id, name, icon, secondary_id, kind, class
		FROM entities
		WHERE category = ? AND name LIKE ? ESCAPE '\'
		ORDER BY (name LIKE ? ESCAPE '\') DESC, length(name), name
		LIMIT ?;
	`, category.String(), "%"+escaped+"%", escaped+"%", c.limit)
	if err != nil {
		return nil, err
	}
	matches, err := scanCandidates(rows, category)
	if err != nil {
		return nil, err
	}
	if len(matches) >= c.limit {
		return matches, nil
	}

	rows, err = c.Conn.QueryContext(ctx, `
		SELECT id, name, icon, secondary_id, kind, class
		FROM entities
		WHERE category = ?;
	`, category.String())
	if err != nil {
		return nil, err
	}
	pool, err := scanCandidates(rows, category)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]struct{}, len(matches))
	for _, m := range matches {
		seen[m.ID] = struct{}{}
	}
	rest := pool[:0]
	for _, p := range pool {
		if _, ok := seen[p.ID]; !ok {
			rest = append(rest, p)
		}
	}
	return append(matches, fuzzy(query, rest, c.limit-len(matches))...), nil
}

func scanCandidates(rows *sql.Rows, category document.Category) ([]Candidate, error) {
	defer rows.Close()
	var out []Candidate
	for rows.Next() {
		cand := Candidate{Category: category}
		if err := rows.Scan(&cand.ID, &cand.Name, &cand.Icon, &cand.SecondaryID, &cand.Kind, &cand.Class); err != nil {
			return nil, err
		}
		out = append(out, cand)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Close closes the database connection
func (c *Catalog) Close() error {
	return c.Conn.Close()
}
