package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/twhost/internal/storage"
)

// watcherTestEnv sets up a sites dir, storage, and DB for watcher tests.
func watcherTestEnv(t *testing.T) (string, storage.Provider, *DB) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store, testDB(t)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestSync_IndexesAndRemoves(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	ctx := context.Background()

	_ = os.WriteFile(filepath.Join(dir, "one.html"), wiki(t, "A", "alpha"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "junk.html"), []byte("<html><body>nope</body></html>"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644)

	if err := Sync(ctx, db, store, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	site, err := db.GetSite(ctx, "one")
	if err != nil {
		t.Fatalf("GetSite: %v", err)
	}
	if site.TiddlerCount != 1 {
		t.Errorf("TiddlerCount = %d, want 1", site.TiddlerCount)
	}
	if cs, _ := db.GetChecksum(ctx, "junk"); cs != "" {
		t.Error("non-wiki file should not be indexed")
	}

	_ = os.Remove(filepath.Join(dir, "one.html"))
	if err := Sync(ctx, db, store, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if cs, _ := db.GetChecksum(ctx, "one"); cs != "" {
		t.Error("removed file still indexed")
	}
}

func TestSync_UnchangedKeepsRow(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	ctx := context.Background()
	_ = os.WriteFile(filepath.Join(dir, "same.html"), wiki(t, "A", "alpha"), 0o644)

	_ = Sync(ctx, db, store, quietLogger())
	first, _ := db.GetSite(ctx, "same")
	_ = Sync(ctx, db, store, quietLogger())
	second, _ := db.GetSite(ctx, "same")
	if !first.UpdatedAt.Equal(second.UpdatedAt) {
		t.Error("unchanged site should not be re-indexed")
	}
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	dir, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, db, store, dir, quietLogger(), func(kind, name string) {
		mu.Lock()
		events = append(events, kind+":"+name)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(dir, "new.html"), wiki(t, "Hello", "world"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum(ctx, "new")
		return cs != ""
	}, "new file not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:new" {
				return true
			}
		}
		return false
	}, "expected created:new callback")
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string
	go Watch(ctx, db, store, dir, quietLogger(), func(kind, name string) {
		mu.Lock()
		events = append(events, kind+":"+name)
		mu.Unlock()
	})
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(dir, "readme.md"), []byte("# hi"), 0o644)
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 0 {
		t.Errorf("unexpected events: %v", events)
	}
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = os.WriteFile(filepath.Join(dir, "del.html"), wiki(t, "Delete", "me"), 0o644)
	_ = Sync(ctx, db, store, quietLogger())

	cs, _ := db.GetChecksum(ctx, "del")
	if cs == "" {
		t.Fatal("precondition: file should be indexed")
	}

	go Watch(ctx, db, store, dir, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(dir, "del.html"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum(ctx, "del")
		return cs == ""
	}, "deleted file still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = os.WriteFile(filepath.Join(dir, "old.html"), wiki(t, "Rename", "me"), 0o644)
	_ = Sync(ctx, db, store, quietLogger())

	go Watch(ctx, db, store, dir, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(dir, "old.html"), filepath.Join(dir, "renamed.html"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		oldCS, _ := db.GetChecksum(ctx, "old")
		newCS, _ := db.GetChecksum(ctx, "renamed")
		return oldCS == "" && newCS != ""
	}, "rename reconciliation failed: old site should be removed and new site indexed")
}
