package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/twhost/internal/checksum"
	"github.com/starford/twhost/internal/storage"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, name string)

// Watch starts an fsnotify watcher on the sites directory and processes
// changes to .html files until ctx is cancelled. It calls cb (if non-nil)
// after each index mutation. Writes whose content is already indexed, such
// as the service's own saves, produce no callback.
//
// Rename events trigger a reconciliation pass that removes stale index
// entries whose files no longer exist.
func Watch(ctx context.Context, db *DB, store storage.Provider, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	// reconcileTimer is used to debounce rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(ctx, db, store, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			name, ok := storage.SiteName(filepath.Base(ev.Name))
			if !ok {
				continue
			}
			key := storage.SiteKey(name)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := store.Read(ctx, key)
				if readErr != nil {
					logger.Warn("watcher: read failed", slog.String("site", name), slog.String("error", readErr.Error()))
					continue
				}
				known, _ := db.GetChecksum(ctx, name)
				if known == checksum.Sum(data) {
					continue
				}
				if _, idxErr := indexSite(ctx, db, name, data); idxErr != nil {
					logger.Warn("watcher: index failed", slog.String("site", name), slog.String("error", idxErr.Error()))
					continue
				}
				kind := "updated"
				if known == "" {
					kind = "created"
				}
				logger.Debug("watcher: indexed", slog.String("site", name), slog.String("op", kind))
				if cb != nil {
					cb(kind, name)
				}

			case ev.Op&fsnotify.Remove != 0:
				if delErr := db.DeleteSite(ctx, name); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("site", name), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("site", name))
				if cb != nil {
					cb("deleted", name)
				}

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the old path only; the new path
				// arrives as a Create if it stays in the directory.
				if delErr := db.DeleteSite(ctx, name); delErr != nil {
					logger.Warn("watcher: rename delete failed", slog.String("site", name), slog.String("error", delErr.Error()))
				} else {
					logger.Debug("watcher: rename old deleted", slog.String("site", name))
					if cb != nil {
						cb("deleted", name)
					}
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile removes index entries without a stored file and indexes stored
// files that are missing or out of date.
func reconcile(ctx context.Context, db *DB, store storage.Provider, logger *slog.Logger, cb EventCallback) {
	checksums, err := db.AllChecksums(ctx)
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}

	metas, err := store.List(ctx)
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	stored := make(map[string]string, len(metas))
	for _, m := range metas {
		if name, ok := storage.SiteName(m.Key); ok {
			stored[name] = m.Checksum
		}
	}

	for name := range checksums {
		if _, ok := stored[name]; !ok {
			if delErr := db.DeleteSite(ctx, name); delErr == nil {
				logger.Debug("reconcile: removed stale", slog.String("site", name))
				if cb != nil {
					cb("deleted", name)
				}
			}
		}
	}

	for name, cs := range stored {
		if checksums[name] == cs {
			continue
		}
		data, readErr := store.Read(ctx, storage.SiteKey(name))
		if readErr != nil {
			continue
		}
		if _, idxErr := indexSite(ctx, db, name, data); idxErr == nil {
			logger.Debug("reconcile: indexed", slog.String("site", name))
			if cb != nil {
				cb("created", name)
			}
		}
	}
}
