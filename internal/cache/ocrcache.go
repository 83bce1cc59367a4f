package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// ocrSubdir keeps OCR results apart from HTTP entries in a shared cache dir.
const ocrSubdir = "ocr"

// OCREntry is one recognized image.
type OCREntry struct {
	Engine   string    `json:"engine"`
	Language string    `json:"language"`
	Text     string    `json:"text"`
	SavedAt  time.Time `json:"saved_at"`
}

// OCRCache stores recognized text keyed by engine, language and image bytes,
// so the same picture served from two URLs is recognized once.
type OCRCache struct {
	Dir         string
	StrictPerms bool
}

// OCRKey builds a cache key from the engine name, language and image digest.
func OCRKey(engine, language string, image []byte) string {
	h := sha256.New()
	h.Write([]byte(engine))
	h.Write([]byte{0})
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write(image)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *OCRCache) dir() string { return filepath.Join(c.Dir, ocrSubdir) }

func (c *OCRCache) pathFor(key string) string {
	return filepath.Join(c.dir(), key+".json")
}

// Get returns the cached entry if present. A missing or unreadable entry is a
// miss, not an error.
func (c *OCRCache) Get(_ context.Context, key string) (OCREntry, bool, error) {
	if c == nil || c.Dir == "" {
		return OCREntry{}, false, ensureDir("", false)
	}
	if err := ensureDir(c.dir(), c.StrictPerms); err != nil {
		return OCREntry{}, false, err
	}
	p := c.pathFor(key)
	b, err := os.ReadFile(p)
	if err != nil {
		return OCREntry{}, false, nil
	}
	var e OCREntry
	if err := json.Unmarshal(b, &e); err != nil {
		return OCREntry{}, false, nil
	}
	// Touch mtime so age-based purges keep entries that are still used.
	now := time.Now()
	_ = os.Chtimes(p, now, now)
	return e, true, nil
}

// Save writes an entry.
func (c *OCRCache) Save(_ context.Context, key string, e OCREntry) error {
	if c == nil || c.Dir == "" {
		return ensureDir("", false)
	}
	if err := ensureDir(c.dir(), c.StrictPerms); err != nil {
		return err
	}
	if e.SavedAt.IsZero() {
		e.SavedAt = time.Now().UTC()
	}
	data, err := json.Marshal(&e)
	if err != nil {
		return err
	}
	return os.WriteFile(c.pathFor(key), data, fileMode(c.StrictPerms))
}
