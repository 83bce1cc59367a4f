//go:build !tesseract

package ocr

import (
	"context"
	"fmt"

	"golang.org/x/text/language"
)

// Tesseract is unavailable in builds without the "tesseract" tag.
type Tesseract struct{}

// NewTesseract reports ErrEngineUnavailable; rebuild with -tags tesseract.
func NewTesseract(language.Tag) (*Tesseract, error) {
	return nil, fmt.Errorf("%w: built without the tesseract tag", ErrEngineUnavailable)
}

func (*Tesseract) Name() string { return "tesseract" }

func (*Tesseract) Recognize(context.Context, Image) (string, error) {
	return "", ErrEngineUnavailable
}

func (*Tesseract) Close() error { return nil }
