//go:build sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS tiddlers_fts USING fts5(
			site UNINDEXED,
			title,
			text,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsReplace(ctx context.Context, tx *sql.Tx, site string, tiddlers []TiddlerRow) error {
	ftsDelete(ctx, tx, site)
	if len(tiddlers) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tiddlers_fts (site, title, text, tags) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare fts insert: %w", err)
	}
	defer stmt.Close()
	for _, t := range tiddlers {
		if _, err := stmt.ExecContext(ctx, site, t.Title, t.Text, t.Tags); err != nil {
			return fmt.Errorf("index: upsert fts: %w", err)
		}
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sql.Tx, site string) {
	_, _ = tx.ExecContext(ctx, `DELETE FROM tiddlers_fts WHERE site = ?`, site)
}

// Search performs an FTS5 full-text search and returns matching results with snippets.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT site,
		       title,
		       snippet(tiddlers_fts, 2, '<b>', '</b>', '...', 64)
		FROM tiddlers_fts
		WHERE tiddlers_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Site, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
