package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ClearDir removes the directory and all contents. It recreates the directory
// afterwards to leave a valid empty cache location.
func ClearDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty dir")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// PurgeHTTPCacheByAge removes HTTP cache entries older than maxAge.
// It inspects <key>.meta.json for the SavedAt timestamp and deletes both meta
// and the corresponding <key>.body when expired. The ocr subdirectory is left
// alone.
func PurgeHTTPCacheByAge(dir string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	now := time.Now().UTC()
	removed := 0
	for _, d := range entries {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".meta.json") {
			continue
		}
		path := filepath.Join(dir, d.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var e HTTPEntry
		if err := json.Unmarshal(b, &e); err != nil {
			continue
		}
		if now.Sub(e.SavedAt) <= maxAge {
			continue
		}
		removed++
		_ = os.Remove(path)
		_ = os.Remove(strings.TrimSuffix(path, ".meta.json") + ".body")
	}
	return removed, nil
}

// PurgeOCRCacheByAge removes OCR entries under <dir>/ocr whose modification
// time is older than maxAge. Get touches entries, so this is least recently
// used rather than oldest written.
func PurgeOCRCacheByAge(dir string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	root := filepath.Join(dir, ocrSubdir)
	now := time.Now().UTC()
	removed := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if now.Sub(info.ModTime().UTC()) <= maxAge {
			return nil
		}
		removed++
		_ = os.Remove(path)
		return nil
	})
	return removed, err
}
