// Package extract finds poem-like text on a web page: in elements whose class
// names hint at poetry, in Arabic-script paragraphs and in images via OCR.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/hyperifyio/poemscout/internal/classify"
	"github.com/hyperifyio/poemscout/internal/ocr"
)

var (
	ErrFetch      = errors.New("page fetch failed")
	ErrParse      = errors.New("page parse failed")
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// poetryClass matches class attributes used by Urdu poetry sites.
var poetryClass = regexp.MustCompile(`(?i)poem|shair|sher|verse|poetry|ghazal|nazm`)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true}

// Source records which rule produced a candidate.
type Source string

const (
	SourceContainer Source = "container"
	SourceParagraph Source = "paragraph"
	SourceImage     Source = "image"
)

// Candidate is a block of text that might be a poem.
type Candidate struct {
	Text   string `json:"text"`
	Source Source `json:"source"`
	// ImageURL is set for SourceImage candidates.
	ImageURL string `json:"image_url,omitempty"`
}

// PageGetter fetches a page body and its Content-Type.
type PageGetter interface {
	Get(ctx context.Context, url string) ([]byte, string, error)
}

// ImageReader turns an image URL into text.
type ImageReader interface {
	ReadURL(ctx context.Context, url string) ocr.Result
}

// RobotsChecker decides whether a page may be fetched and how long to wait
// between requests to its host.
type RobotsChecker interface {
	Allowed(ctx context.Context, pageURL string) (bool, time.Duration, error)
}

// Extractor fetches pages and prepares them for candidate extraction.
type Extractor struct {
	Pages  PageGetter
	Images ImageReader
	// Robots is optional. When it cannot answer, the page is fetched.
	Robots RobotsChecker
	// ImageInterval is the minimum gap between image fetches. A longer
	// robots.txt Crawl-delay wins.
	ImageInterval time.Duration
	Log           zerolog.Logger
}

// Page is a parsed page. Its candidates are produced lazily.
type Page struct {
	URL string
	// Err is set when the page could not be used; Candidates then yields nothing.
	Err error

	doc    *goquery.Document
	base   *url.URL
	images ImageReader
	pace   *rate.Limiter
	log    zerolog.Logger
	used   atomic.Bool
}

// Extract runs the robots gate, fetches pageURL and parses it. Failures are
// reported on Page.Err.
func (e *Extractor) Extract(ctx context.Context, pageURL string) *Page {
	log := e.Log.With().Str("url", pageURL).Logger()
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &Page{URL: pageURL, Err: fmt.Errorf("%w: invalid url %q", ErrFetch, pageURL), log: log}
	}

	var delay time.Duration
	if e.Robots != nil {
		ok, d, err := e.Robots.Allowed(ctx, pageURL)
		switch {
		case err != nil:
			log.Debug().Err(err).Msg("robots.txt unavailable, proceeding")
		case !ok:
			return &Page{URL: pageURL, Err: fmt.Errorf("%w: %s", ErrDisallowed, pageURL), log: log}
		default:
			delay = d
		}
	}
	if e.Pages == nil {
		return &Page{URL: pageURL, Err: fmt.Errorf("%w: no page fetcher configured", ErrFetch), log: log}
	}
	body, contentType, err := e.Pages.Get(ctx, pageURL)
	if err != nil {
		return &Page{URL: pageURL, Err: fmt.Errorf("%w: %w", ErrFetch, err), log: log}
	}
	log.Debug().Int("bytes", len(body)).Str("content_type", contentType).Msg("page fetched")

	p := FromHTML(body, contentType, pageURL, e.Images)
	p.log = log
	if interval := max(e.ImageInterval, delay); interval > 0 {
		p.pace = rate.NewLimiter(rate.Every(interval), 1)
	}
	return p
}

// FromHTML parses body as the page at pageURL. contentType, when it names a
// charset, is used to transcode the body to UTF-8; otherwise the charset is
// sniffed from meta tags. images may be nil to skip OCR.
func FromHTML(body []byte, contentType string, pageURL string, images ImageReader) *Page {
	p := &Page{URL: pageURL, images: images, log: zerolog.Nop()}
	base, err := url.Parse(pageURL)
	if err != nil {
		p.Err = fmt.Errorf("%w: base url: %w", ErrParse, err)
		return p
	}
	p.base = base
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		p.Err = fmt.Errorf("%w: charset: %w", ErrParse, err)
		return p
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		p.Err = fmt.Errorf("%w: %w", ErrParse, err)
		return p
	}
	p.doc = doc
	return p
}

// Candidates yields, in order: poetry-classed div/p/blockquote texts longer
// than classify.MinChars, poem-like paragraphs, then OCR text of linked
// images. Texts are trimmed and not deduplicated.
//
// Images are fetched and recognized one at a time as the sequence is
// consumed; stopping early skips the remaining images. The sequence can be
// ranged over once; later ranges yield nothing.
func (p *Page) Candidates(ctx context.Context) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		if p.Err != nil || p.doc == nil || !p.used.CompareAndSwap(false, true) {
			return
		}
		stopped := false
		p.doc.Find("div, p, blockquote").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if !poetryClass.MatchString(s.AttrOr("class", "")) {
				return true
			}
			text := strings.TrimSpace(s.Text())
			if !classify.LongEnough(text) {
				return true
			}
			stopped = !yield(Candidate{Text: text, Source: SourceContainer})
			return !stopped
		})
		if stopped {
			return
		}
		p.doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			if !classify.IsPoemLike(text) {
				return true
			}
			stopped = !yield(Candidate{Text: text, Source: SourceParagraph})
			return !stopped
		})
		if stopped || p.images == nil {
			return
		}
		for _, imgURL := range p.imageURLs() {
			if ctx.Err() != nil {
				return
			}
			if p.pace != nil {
				if err := p.pace.Wait(ctx); err != nil {
					return
				}
			}
			res := p.images.ReadURL(ctx, imgURL)
			if res.Err != nil {
				p.log.Warn().Err(res.Err).Str("stage", "ocr").Str("image", imgURL).Msg("image skipped")
				continue
			}
			text := strings.TrimSpace(res.Text)
			if !classify.LongEnough(text) {
				p.log.Debug().Str("image", imgURL).Int("chars", len([]rune(text))).Msg("ocr text too short")
				continue
			}
			if !yield(Candidate{Text: text, Source: SourceImage, ImageURL: imgURL}) {
				return
			}
		}
	}
}

// imageURLs returns the absolute URLs of <img> elements, in document order,
// whose path names a JPEG, PNG or GIF file. data-src covers lazy loading.
func (p *Page) imageURLs() []string {
	var out []string
	p.doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			src = strings.TrimSpace(s.AttrOr("data-src", ""))
		}
		if src == "" {
			return
		}
		u, err := p.base.Parse(src)
		if err != nil {
			p.log.Debug().Err(err).Str("src", src).Msg("unresolvable image src")
			return
		}
		if !imageExts[strings.ToLower(path.Ext(u.Path))] {
			return
		}
		out = append(out, u.String())
	})
	return out
}

// Title returns the document title, if any.
func (p *Page) Title() string {
	if p.doc == nil {
		return ""
	}
	return strings.TrimSpace(p.doc.Find("head title").First().Text())
}
