//go:build sqlite_fts5

package index

import (
	"context"
	"testing"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM tiddlers_fts`).Scan(&count); err != nil {
		t.Fatalf("tiddlers_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	tiddlers := []TiddlerRow{{Title: "FTS Tiddler", Tags: "search", Text: "Hosted wikis get powerful full-text search."}}
	if _, err := db.UpsertSite(ctx, SiteRow{Name: "fts", Checksum: "f1"}, tiddlers); err != nil {
		t.Fatalf("UpsertSite: %v", err)
	}

	results, err := db.Search(ctx, "powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Site != "fts" || results[0].Title != "FTS Tiddler" {
		t.Errorf("result = %+v", results[0])
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, _ = db.UpsertSite(ctx, SiteRow{Name: "gone", Checksum: "g"}, []TiddlerRow{{Title: "T", Text: "vanishing content"}})
	_ = db.DeleteSite(ctx, "gone")

	results, _ := db.Search(ctx, "vanishing", 10)
	for _, r := range results {
		if r.Site == "gone" {
			t.Error("deleted site still in FTS index")
		}
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, _ = db.UpsertSite(ctx, SiteRow{Name: "evo", Checksum: "1"}, []TiddlerRow{{Title: "Old", Text: "original text"}})
	_, _ = db.UpsertSite(ctx, SiteRow{Name: "evo", Checksum: "2"}, []TiddlerRow{{Title: "New", Text: "replacement text"}})

	results, _ := db.Search(ctx, "original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search(ctx, "replacement", 10)
	if len(results) != 1 || results[0].Title != "New" {
		t.Errorf("FTS not updated: %+v", results)
	}
}
