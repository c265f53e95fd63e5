package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/twhost/internal/checksum"
	"github.com/starford/twhost/internal/storage"
	"github.com/starford/twhost/internal/twfile"
)

// ErrNotWiki is returned when a stored file does not look like a TiddlyWiki.
var ErrNotWiki = errors.New("index: not a TiddlyWiki file")

// Sync walks storage and brings the index up to date:
//   - new/changed sites are parsed and upserted
//   - sites removed from storage are deleted from the index
//
// Providers that do not report checksums in listings (S3) have every site
// read and hashed.
func Sync(ctx context.Context, db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List(ctx)
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums(ctx)
	if err != nil {
		return err
	}

	present := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		name, ok := storage.SiteName(m.Key)
		if !ok {
			continue
		}
		present[name] = struct{}{}

		if m.Checksum != "" && checksums[name] == m.Checksum {
			continue
		}

		data, err := store.Read(ctx, m.Key)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("site", name), slog.String("error", err.Error()))
			continue
		}
		if checksums[name] == checksum.Sum(data) {
			continue
		}
		if _, err := indexSite(ctx, db, name, data); err != nil {
			logger.Warn("sync: index failed", slog.String("site", name), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("site", name))
		}
	}

	// Remove stale entries.
	for name := range checksums {
		if _, ok := present[name]; !ok {
			if err := db.DeleteSite(ctx, name); err != nil {
				logger.Warn("sync: delete failed", slog.String("site", name), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("site", name))
			}
		}
	}

	return nil
}

// indexSite parses data and upserts it into the DB.
func indexSite(ctx context.Context, db *DB, name string, data []byte) (SiteRow, error) {
	f := twfile.ParseBytes(data)
	if !f.LooksValid() {
		return SiteRow{}, fmt.Errorf("%w: %s", ErrNotWiki, name)
	}
	row, tiddlers := FromFile(name, f, checksum.Sum(data), int64(len(data)))
	return db.UpsertSite(ctx, row, tiddlers)
}
