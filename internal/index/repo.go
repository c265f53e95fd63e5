package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/twhost/internal/apperr"
	"github.com/starford/twhost/internal/twfile"
)

// SiteRow represents a row in the sites table.
type SiteRow struct {
	ID           string
	Name         string
	Title        string
	Dialect      string
	Version      string
	Encrypted    bool
	TiddlerCount int
	Size         int64
	Checksum     string
	UpdatedAt    time.Time
}

// TiddlerRow is the searchable copy of one tiddler.
type TiddlerRow struct {
	Title string
	Tags  string
	Text  string
}

// SearchResult represents one search hit.
type SearchResult struct {
	Site    string
	Title   string
	Snippet string
}

// Sort orders accepted by ListSites.
const (
	SortName     = "name"
	SortUpdated  = "updated"
	SortTiddlers = "tiddlers"
)

// FromFile builds the index rows for a parsed wiki. System tiddlers are left
// out of the searchable rows. A store with duplicate titles still yields a
// site row, with the duplicated titles indexed once.
func FromFile(name string, f *twfile.File, sum string, size int64) (SiteRow, []TiddlerRow) {
	format := f.Format()
	titles := f.Titles(false)
	row := SiteRow{
		Name:         name,
		Title:        format.Title,
		Dialect:      format.Dialect.String(),
		Version:      format.Version,
		Encrypted:    format.Encrypted,
		TiddlerCount: len(titles),
		Size:         size,
		Checksum:     sum,
		UpdatedAt:    time.Now().UTC(),
	}

	tiddlers, err := f.Tiddlers(twfile.Query{})
	if err == nil {
		rows := make([]TiddlerRow, 0, len(tiddlers))
		for _, t := range tiddlers {
			rows = append(rows, TiddlerRow{Title: t.Title, Tags: t.Tags, Text: t.Text})
		}
		return row, rows
	}

	seen := make(map[string]bool, len(titles))
	var rows []TiddlerRow
	for _, title := range titles {
		if seen[title] {
			continue
		}
		seen[title] = true
		t, ok, err := f.Tiddler(title)
		if err != nil || !ok {
			rows = append(rows, TiddlerRow{Title: title})
			continue
		}
		rows = append(rows, TiddlerRow{Title: t.Title, Tags: t.Tags, Text: t.Text})
	}
	return row, rows
}

// UpsertSite inserts or replaces a site and its tiddlers within a
// transaction. The site ID is assigned on first insert and kept afterwards;
// the returned row carries it.
func (db *DB) UpsertSite(ctx context.Context, s SiteRow, tiddlers []TiddlerRow) (SiteRow, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return s, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sites (name, id, title, dialect, version, encrypted, tiddler_count, size, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			title         = excluded.title,
			dialect       = excluded.dialect,
			version       = excluded.version,
			encrypted     = excluded.encrypted,
			tiddler_count = excluded.tiddler_count,
			size          = excluded.size,
			checksum      = excluded.checksum,
			updated_at    = excluded.updated_at
	`, s.Name, s.ID, s.Title, s.Dialect, s.Version, s.Encrypted, s.TiddlerCount, s.Size, s.Checksum, s.UpdatedAt)
	if err != nil {
		return s, fmt.Errorf("index: upsert site: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT id FROM sites WHERE name = ?`, s.Name).Scan(&s.ID); err != nil {
		return s, fmt.Errorf("index: read site id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tiddlers WHERE site = ?`, s.Name); err != nil {
		return s, fmt.Errorf("index: clear tiddlers: %w", err)
	}
	if len(tiddlers) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO tiddlers (site, title, tags, text) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return s, fmt.Errorf("index: prepare tiddler insert: %w", err)
		}
		defer stmt.Close()
		for _, t := range tiddlers {
			if _, err := stmt.ExecContext(ctx, s.Name, t.Title, t.Tags, t.Text); err != nil {
				return s, fmt.Errorf("index: insert tiddler: %w", err)
			}
		}
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsReplace(ctx, tx, s.Name, tiddlers); err != nil {
		return s, err
	}

	if err := tx.Commit(); err != nil {
		return s, fmt.Errorf("index: commit: %w", err)
	}
	return s, nil
}

// DeleteSite removes a site and its tiddlers.
func (db *DB) DeleteSite(ctx context.Context, name string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(ctx, tx, name)
	_, _ = tx.ExecContext(ctx, `DELETE FROM tiddlers WHERE site = ?`, name)
	_, _ = tx.ExecContext(ctx, `DELETE FROM sites WHERE name = ?`, name)

	return tx.Commit()
}

const siteColumns = `id, name, title, dialect, version, encrypted, tiddler_count, size, checksum, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSite(r scanner) (SiteRow, error) {
	var s SiteRow
	err := r.Scan(&s.ID, &s.Name, &s.Title, &s.Dialect, &s.Version, &s.Encrypted,
		&s.TiddlerCount, &s.Size, &s.Checksum, &s.UpdatedAt)
	return s, err
}

// GetSite returns the indexed site, or an error wrapping apperr.ErrNotFound.
func (db *DB) GetSite(ctx context.Context, name string) (*SiteRow, error) {
	s, err := scanSite(db.conn.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: site %q: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get site: %w", err)
	}
	return &s, nil
}

// GetChecksum returns the stored checksum for a site, or empty string if not found.
func (db *DB) GetChecksum(ctx context.Context, name string) (string, error) {
	var cs string
	err := db.conn.QueryRowContext(ctx, `SELECT checksum FROM sites WHERE name = ?`, name).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// ListSites returns a page of sites and the total number of sites.
func (db *DB) ListSites(ctx context.Context, limit, offset int, sort string) ([]SiteRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	order := "name ASC"
	switch sort {
	case SortUpdated:
		order = "updated_at DESC, name ASC"
	case SortTiddlers:
		order = "tiddler_count DESC, name ASC"
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM sites`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count sites: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+siteColumns+` FROM sites ORDER BY `+order+` LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list sites: %w", err)
	}
	defer rows.Close()

	var out []SiteRow
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// AllChecksums returns the checksum of every indexed site keyed by name.
func (db *DB) AllChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT name, checksum FROM sites`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var name, cs string
		if err := rows.Scan(&name, &cs); err != nil {
			return nil, err
		}
		out[name] = cs
	}
	return out, rows.Err()
}
