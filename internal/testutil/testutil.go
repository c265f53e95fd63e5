// Package testutil provides shared test helpers for setting up site
// directories, databases and wiki files.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/twhost/internal/empty"
	"github.com/starford/twhost/internal/index"
	"github.com/starford/twhost/internal/storage"
	"github.com/starford/twhost/internal/twfile"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "twhost-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestSites creates a temporary sites directory with a storage.Provider.
func TestSites(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Wiki returns an empty wiki of the given kind with the tiddlers written in
// order, rendered as HTML.
func Wiki(t *testing.T, kind string, entries ...twfile.Entry) []byte {
	t.Helper()
	data, err := empty.Get(kind)
	if err != nil {
		t.Fatal(err)
	}
	f, err := twfile.ParseBytes(data).WriteTiddlers(entries)
	if err != nil {
		t.Fatalf("write tiddlers: %v", err)
	}
	out, err := f.HTML()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return []byte(out)
}

// Text is shorthand for a plain-text entry.
func Text(title, text string) twfile.Entry {
	return twfile.Entry{Title: title, Data: twfile.PlainText(text)}
}
