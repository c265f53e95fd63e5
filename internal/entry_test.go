package internal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/twhost/internal/empty"
	"github.com/starford/twhost/internal/twfile"
)

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestSetup_IndexesExistingSites(t *testing.T) {
	dir := t.TempDir()
	sites := filepath.Join(dir, "sites")
	if err := os.MkdirAll(sites, 0o755); err != nil {
		t.Fatal(err)
	}
	blank, err := empty.Get(empty.KindTW5)
	if err != nil {
		t.Fatal(err)
	}
	f, err := twfile.ParseBytes(blank).WriteTiddlers([]twfile.Entry{{Title: "Hello", Data: twfile.PlainText("world")}})
	if err != nil {
		t.Fatal(err)
	}
	out, err := f.HTML()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sites, "alpha.html"), []byte(out), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	cfg.Storage.Path = sites
	cfg.SQLite.Path = filepath.Join(dir, "index.db")

	var logs bytes.Buffer
	app := &application{}
	for _, opt := range []Option{WithConfig(cfg), WithLogOutput(&logs)} {
		opt(app)
	}
	rt, err := app.setup(context.Background())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer rt.db.Close()

	site, err := rt.service(nil).GetSite(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("GetSite: %v", err)
	}
	if site.Dialect != "tw5" || site.TiddlerCount != 1 {
		t.Errorf("site = %+v, want tw5 with 1 tiddler", site)
	}
	if !strings.Contains(logs.String(), `"msg":"Configuration loaded"`) {
		t.Errorf("log output missing startup line: %q", logs.String())
	}
}

func TestSetup_CreatesSitesDir(t *testing.T) {
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Storage.Path = filepath.Join(dir, "nested", "sites")
	cfg.SQLite.Path = filepath.Join(dir, "index.db")

	app := &application{config: cfg, logOut: &bytes.Buffer{}}
	rt, err := app.setup(context.Background())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer rt.db.Close()

	if info, err := os.Stat(cfg.Storage.Path); err != nil || !info.IsDir() {
		t.Errorf("sites dir not created: %v", err)
	}
}
