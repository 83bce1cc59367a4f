// Package ocr turns images referenced by a page into text.
//
// A Reader fetches the image, checks that it decodes as JPEG, PNG or GIF and
// hands it to an Engine. Engines are pluggable: Tesseract (build tag
// "tesseract"), an OpenAI-compatible vision model, or None.
//
// ReadURL never fails loudly. Every fault is reported in Result.Err and the
// caller decides whether to log it; the text is then empty.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hyperifyio/poemscout/internal/cache"
)

var (
	// ErrFetch marks failures retrieving the image bytes.
	ErrFetch = errors.New("image fetch failed")
	// ErrDecode marks bytes that are not a supported image.
	ErrDecode = errors.New("image decode failed")
	// ErrRecognize marks engine failures, including recovered panics.
	ErrRecognize = errors.New("text recognition failed")
	// ErrEngineUnavailable is returned by engines that cannot run in this build
	// or configuration.
	ErrEngineUnavailable = errors.New("ocr engine unavailable")
)

// Image is a fetched and validated picture.
type Image struct {
	URL    string
	Data   []byte
	Format string // "jpeg", "png" or "gif"
	Bounds image.Rectangle
}

// MIMEType returns the media type of the decoded format.
func (i Image) MIMEType() string {
	if i.Format == "" {
		return "application/octet-stream"
	}
	return "image/" + i.Format
}

// Engine recognizes text in an image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img Image) (string, error)
}

// Fetcher retrieves raw bytes; *fetch.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, string, error)
}

// Result is the outcome of reading one image. Text is trimmed and empty
// whenever Err is set.
type Result struct {
	Text   string
	Err    error
	Cached bool
}

// Reader reads text out of images addressed by URL.
type Reader struct {
	Fetcher Fetcher
	Engine  Engine
	// Language is the configured language tag, part of the cache key.
	Language string
	// Cache is optional.
	Cache *cache.OCRCache
	Log   zerolog.Logger
}

// ReadURL fetches, decodes and recognizes the image at url.
func (r *Reader) ReadURL(ctx context.Context, url string) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{Err: fmt.Errorf("%w: panic: %v", ErrRecognize, p)}
		}
	}()
	if r.Fetcher == nil {
		return Result{Err: fmt.Errorf("%w: no fetcher configured", ErrFetch)}
	}
	data, _, err := r.Fetcher.Get(ctx, url)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %s: %w", ErrFetch, url, err)}
	}
	img, err := Decode(data)
	if err != nil {
		return Result{Err: err}
	}
	img.URL = url
	return r.Read(ctx, img)
}

// Read recognizes an already decoded image, consulting the cache first.
func (r *Reader) Read(ctx context.Context, img Image) Result {
	if r.Engine == nil {
		return Result{Err: fmt.Errorf("%w: %w", ErrRecognize, ErrEngineUnavailable)}
	}
	var key string
	if r.Cache != nil {
		key = cache.OCRKey(r.Engine.Name(), r.Language, img.Data)
		if e, ok, _ := r.Cache.Get(ctx, key); ok {
			r.Log.Debug().Str("url", img.URL).Str("engine", e.Engine).Msg("ocr cache hit")
			return Result{Text: e.Text, Cached: true}
		}
	}
	text, err := r.recognize(ctx, img)
	if err != nil {
		return Result{Err: err}
	}
	if r.Cache != nil {
		if err := r.Cache.Save(ctx, key, cache.OCREntry{Engine: r.Engine.Name(), Language: r.Language, Text: text}); err != nil {
			r.Log.Debug().Err(err).Str("url", img.URL).Msg("ocr cache save failed")
		}
	}
	return Result{Text: text}
}

func (r *Reader) recognize(ctx context.Context, img Image) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("%w: %s panicked: %v", ErrRecognize, r.Engine.Name(), p)
		}
	}()
	text, err = r.Engine.Recognize(ctx, img)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrRecognize, r.Engine.Name(), err)
	}
	return strings.TrimSpace(text), nil
}

// Decode validates data as a JPEG, PNG or GIF image.
func Decode(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty body", ErrDecode)
	}
	m, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	b := m.Bounds()
	if b.Empty() {
		return Image{}, fmt.Errorf("%w: empty image", ErrDecode)
	}
	return Image{Data: data, Format: format, Bounds: b}, nil
}

// None is the engine used when OCR is disabled or unavailable.
type None struct{}

func (None) Name() string { return "none" }

func (None) Recognize(context.Context, Image) (string, error) {
	return "", ErrEngineUnavailable
}
