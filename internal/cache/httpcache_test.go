package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestHTTPCache_SaveLoad(t *testing.T) {
	t.Parallel()
	c := &HTTPCache{Dir: t.TempDir()}
	ctx := context.Background()
	url := "https://rekhta.example/poet/ghalib"
	if err := c.Save(ctx, url, "text/html; charset=utf-8", `"v1"`, "Mon, 01 Jan 2024 00:00:00 GMT", []byte("<html></html>")); err != nil {
		t.Fatalf("save: %v", err)
	}
	meta, err := c.LoadMeta(ctx, url)
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.ETag != `"v1"` || meta.ContentType != "text/html; charset=utf-8" || meta.URL != url {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	if meta.SavedAt.IsZero() {
		t.Fatalf("SavedAt not set")
	}
	body, err := c.LoadBody(ctx, url)
	if err != nil || string(body) != "<html></html>" {
		t.Fatalf("body=%q err=%v", body, err)
	}
	if _, err := c.LoadBody(ctx, "https://rekhta.example/other"); err == nil {
		t.Fatalf("expected miss for unknown url")
	}
}

func TestHTTPCache_RequiresDir(t *testing.T) {
	t.Parallel()
	c := &HTTPCache{}
	if err := c.Save(context.Background(), "https://x", "", "", "", nil); err == nil {
		t.Fatalf("expected error without dir")
	}
}

func TestHTTPCache_StrictPerms(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not enforced on windows")
	}
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "http")
	c := &HTTPCache{Dir: dir, StrictPerms: true}
	url := "https://example.com/a"
	if err := c.Save(context.Background(), url, "text/html", "", "", []byte("x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat dir: %v", err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Fatalf("dir perms = %o, want 700", info.Mode().Perm())
	}
	key := c.key(url)
	for _, p := range []string{c.bodyPath(key), c.metaPath(key)} {
		fi, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if fi.Mode().Perm() != 0o600 {
			t.Fatalf("%s perms = %o, want 600", filepath.Base(p), fi.Mode().Perm())
		}
	}
}

func TestPurgeHTTPCacheByAge(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c := &HTTPCache{Dir: dir}
	ctx := context.Background()
	if err := c.Save(ctx, "https://old", "text/html", "", "", []byte("old")); err != nil {
		t.Fatalf("save old: %v", err)
	}
	if err := c.Save(ctx, "https://new", "text/html", "", "", []byte("new")); err != nil {
		t.Fatalf("save new: %v", err)
	}
	// Backdate the first entry.
	key := c.key("https://old")
	e := HTTPEntry{URL: "https://old", SavedAt: time.Now().Add(-48 * time.Hour)}
	b, _ := json.Marshal(e)
	if err := os.WriteFile(c.metaPath(key), b, 0o644); err != nil {
		t.Fatalf("rewrite meta: %v", err)
	}
	// An OCR entry in the same dir must survive the HTTP purge.
	oc := &OCRCache{Dir: dir}
	if err := oc.Save(ctx, "k", OCREntry{Text: "t"}); err != nil {
		t.Fatalf("ocr save: %v", err)
	}

	removed, err := PurgeHTTPCacheByAge(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed=%d want 1", removed)
	}
	if _, err := c.LoadBody(ctx, "https://old"); err == nil {
		t.Fatalf("old body should be gone")
	}
	if _, err := c.LoadBody(ctx, "https://new"); err != nil {
		t.Fatalf("new body should remain: %v", err)
	}
	if _, ok, _ := oc.Get(ctx, "k"); !ok {
		t.Fatalf("ocr entry should remain")
	}
}

func TestPurgeHTTPCacheByAge_MissingDir(t *testing.T) {
	t.Parallel()
	n, err := PurgeHTTPCacheByAge(filepath.Join(t.TempDir(), "nope"), time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestClearDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ClearDir(dir); err != nil {
		t.Fatalf("clear: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("dir should exist: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty dir, got %d entries", len(entries))
	}
	if err := ClearDir("  "); err == nil {
		t.Fatalf("expected error for blank dir")
	}
}
