package index

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/twhost/internal/apperr"
	"github.com/starford/twhost/internal/empty"
	"github.com/starford/twhost/internal/twfile"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "twhost-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// wiki renders an empty TW5 file with the given title/text pairs written.
func wiki(t *testing.T, pairs ...string) []byte {
	t.Helper()
	data, err := empty.Get(empty.KindTW5)
	if err != nil {
		t.Fatal(err)
	}
	f := twfile.ParseBytes(data)
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := f.WriteTiddler(pairs[i], twfile.PlainText(pairs[i+1])); err != nil {
			t.Fatal(err)
		}
	}
	out, err := f.HTML()
	if err != nil {
		t.Fatal(err)
	}
	return []byte(out)
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM sites`).Scan(&count); err != nil {
		t.Fatalf("sites table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM tiddlers`).Scan(&count); err != nil {
		t.Fatalf("tiddlers table missing: %v", err)
	}
}

func TestUpsertAndGetSite(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	row := SiteRow{
		Name:         "foo",
		Title:        "TiddlyWiki",
		Dialect:      "tw5",
		Version:      "5.3.3",
		TiddlerCount: 1,
		Size:         1234,
		Checksum:     "abc123",
		UpdatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	stored, err := db.UpsertSite(ctx, row, []TiddlerRow{{Title: "Hello", Text: "world"}})
	if err != nil {
		t.Fatalf("UpsertSite: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("expected an id to be assigned")
	}

	got, err := db.GetSite(ctx, "foo")
	if err != nil {
		t.Fatalf("GetSite: %v", err)
	}
	row.ID = stored.ID
	if diff := cmp.Diff(row, *got); diff != "" {
		t.Errorf("GetSite mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsertKeepsID(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	first, _ := db.UpsertSite(ctx, SiteRow{Name: "keep", Checksum: "1"}, nil)
	second, err := db.UpsertSite(ctx, SiteRow{Name: "keep", Checksum: "2"}, nil)
	if err != nil {
		t.Fatalf("UpsertSite: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("id changed on update: %q -> %q", first.ID, second.ID)
	}
	cs, _ := db.GetChecksum(ctx, "keep")
	if cs != "2" {
		t.Errorf("checksum = %q, want %q", cs, "2")
	}
}

func TestUpsertReplacesTiddlers(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, _ = db.UpsertSite(ctx, SiteRow{Name: "up", Checksum: "1"}, []TiddlerRow{{Title: "Old", Text: "stale words"}})
	_, _ = db.UpsertSite(ctx, SiteRow{Name: "up", Checksum: "2"}, []TiddlerRow{{Title: "New", Text: "fresh words"}})

	results, err := db.Search(ctx, "stale", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("old tiddler still searchable: %+v", results)
	}
	results, _ = db.Search(ctx, "fresh", 10)
	if len(results) != 1 || results[0].Title != "New" {
		t.Errorf("search results = %+v", results)
	}
}

func TestDeleteSite(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, _ = db.UpsertSite(ctx, SiteRow{Name: "del", Checksum: "x"}, []TiddlerRow{{Title: "T", Text: "doomed"}})

	if err := db.DeleteSite(ctx, "del"); err != nil {
		t.Fatalf("DeleteSite: %v", err)
	}
	if _, err := db.GetSite(ctx, "del"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetSite after delete: err = %v, want ErrNotFound", err)
	}
	results, _ := db.Search(ctx, "doomed", 10)
	if len(results) != 0 {
		t.Errorf("expected no hits after delete, got %+v", results)
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestListSites_SortAndPage(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, _ = db.UpsertSite(ctx, SiteRow{Name: "b", TiddlerCount: 5, UpdatedAt: base}, nil)
	_, _ = db.UpsertSite(ctx, SiteRow{Name: "a", TiddlerCount: 1, UpdatedAt: base.Add(time.Hour)}, nil)
	_, _ = db.UpsertSite(ctx, SiteRow{Name: "c", TiddlerCount: 3, UpdatedAt: base.Add(2 * time.Hour)}, nil)

	names := func(rows []SiteRow) []string {
		var out []string
		for _, r := range rows {
			out = append(out, r.Name)
		}
		return out
	}

	rows, total, err := db.ListSites(ctx, 10, 0, SortName)
	if err != nil {
		t.Fatalf("ListSites: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, names(rows)); diff != "" {
		t.Errorf("by name (-want +got):\n%s", diff)
	}

	rows, _, _ = db.ListSites(ctx, 10, 0, SortUpdated)
	if diff := cmp.Diff([]string{"c", "a", "b"}, names(rows)); diff != "" {
		t.Errorf("by updated (-want +got):\n%s", diff)
	}

	rows, _, _ = db.ListSites(ctx, 10, 0, SortTiddlers)
	if diff := cmp.Diff([]string{"b", "c", "a"}, names(rows)); diff != "" {
		t.Errorf("by tiddlers (-want +got):\n%s", diff)
	}

	rows, total, _ = db.ListSites(ctx, 1, 1, SortName)
	if total != 3 || len(rows) != 1 || rows[0].Name != "b" {
		t.Errorf("page = %v (total %d), want [b] (total 3)", names(rows), total)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, _ = db.UpsertSite(ctx, SiteRow{Name: "s", Checksum: "1"}, []TiddlerRow{{Title: "Search Me", Text: "uniqueword appears here"}})

	results, err := db.Search(ctx, "uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Site != "s" || results[0].Title != "Search Me" {
		t.Errorf("search results = %+v, want 1 hit for s/Search Me", results)
	}
}

func TestFromFile(t *testing.T) {
	data := wiki(t, "Foo", "foo text", "Bar", "bar text")
	row, tiddlers := FromFile("site", twfile.ParseBytes(data), "sum", int64(len(data)))

	if row.Name != "site" || row.Dialect != "tw5" || row.Version != "5.3.3" || row.Encrypted {
		t.Errorf("row = %+v", row)
	}
	if row.TiddlerCount != 2 {
		t.Errorf("TiddlerCount = %d, want 2 (system tiddlers excluded)", row.TiddlerCount)
	}
	want := []TiddlerRow{{Title: "Foo", Text: "foo text"}, {Title: "Bar", Text: "bar text"}}
	if diff := cmp.Diff(want, tiddlers); diff != "" {
		t.Errorf("tiddlers mismatch (-want +got):\n%s", diff)
	}
}

func TestFromFile_Duplicates(t *testing.T) {
	f, err := twfile.FromFile("../twfile/testdata/duplicate.html")
	if err != nil {
		t.Fatal(err)
	}
	row, tiddlers := FromFile("dup", f, "sum", 1)
	if row.TiddlerCount != 4 {
		t.Errorf("TiddlerCount = %d, want 4", row.TiddlerCount)
	}
	var titles []string
	for _, td := range tiddlers {
		titles = append(titles, td.Title)
	}
	if diff := cmp.Diff([]string{"First", "Dup", "Last"}, titles); diff != "" {
		t.Errorf("titles mismatch (-want +got):\n%s", diff)
	}
}
