//go:build tesseract

package ocr

import (
	"context"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/text/language"
)

// Tesseract recognizes text with a local Tesseract install. The matching
// traineddata (e.g. urd.traineddata) must be present.
type Tesseract struct {
	lang   string
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract creates an engine for tag.
func NewTesseract(tag language.Tag) (*Tesseract, error) {
	code := TesseractCode(tag)
	c := gosseract.NewClient()
	if err := c.SetLanguage(code); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%w: tesseract language %s: %w", ErrEngineUnavailable, code, err)
	}
	if err := c.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%w: tesseract page mode: %w", ErrEngineUnavailable, err)
	}
	return &Tesseract{lang: code, client: c}, nil
}

func (t *Tesseract) Name() string { return "tesseract" }

// Recognize is serialized; a gosseract client is not safe for concurrent use.
func (t *Tesseract) Recognize(ctx context.Context, img Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.client.SetImageFromBytes(img.Data); err != nil {
		return "", err
	}
	return t.client.Text()
}

func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
