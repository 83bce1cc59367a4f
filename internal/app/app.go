// Package app wires the store, fetchers, OCR and selection into the scout
// pipeline used by the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/poemscout/internal/cache"
	"github.com/hyperifyio/poemscout/internal/extract"
	"github.com/hyperifyio/poemscout/internal/fetch"
	"github.com/hyperifyio/poemscout/internal/llm"
	"github.com/hyperifyio/poemscout/internal/ocr"
	"github.com/hyperifyio/poemscout/internal/robots"
	selecter "github.com/hyperifyio/poemscout/internal/select"
	"github.com/hyperifyio/poemscout/internal/store"
)

// ErrMissingInput is returned when the poet name or page URL is empty.
var ErrMissingInput = errors.New("Both poet name and website URL are required.") //nolint:staticcheck // user-facing message

// ScoutResult is the outcome of one request. Found is false when the page
// offered nothing that is not already stored for the poet.
type ScoutResult struct {
	RequestID string         `json:"request_id"`
	Poet      string         `json:"poet"`
	SourceURL string         `json:"source_url"`
	PageTitle string         `json:"page_title,omitempty"`
	Found     bool           `json:"found"`
	Poem      string         `json:"poem,omitempty"`
	Source    extract.Source `json:"source,omitempty"`
	ImageURL  string         `json:"image_url,omitempty"`
}

type App struct {
	cfg       Config
	store     *store.Store
	extractor *extract.Extractor
	reader    *ocr.Reader
	selector  selecter.Selector
	engine    ocr.Engine
	log       zerolog.Logger
}

// Option customizes New.
type Option func(*options)

type options struct {
	engine     ocr.Engine
	rand       *rand.Rand
	log        *zerolog.Logger
	httpClient *http.Client
}

// WithEngine replaces the OCR engine chosen by Config.OCREngine.
func WithEngine(e ocr.Engine) Option { return func(o *options) { o.engine = e } }

// WithRand makes selection deterministic.
func WithRand(r *rand.Rand) Option { return func(o *options) { o.rand = r } }

// WithLogger replaces the global zerolog logger.
func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.log = &l } }

// WithHTTPClient replaces the HTTP client used for pages, images and robots.txt.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// New opens the store and builds the pipeline. The caller must Close the app.
func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.Logger
	if o.log != nil {
		logger = *o.log
	}
	lang, _ := ocr.ParseLanguage(cfg.OCRLanguage)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	var httpCache *cache.HTTPCache
	var ocrCache *cache.OCRCache
	if dir := strings.TrimSpace(cfg.CacheDir); dir != "" {
		if cfg.CacheClear {
			if err := cache.ClearDir(dir); err != nil {
				logger.Warn().Err(err).Str("dir", dir).Msg("cache clear failed")
			}
		}
		if cfg.CacheMaxAge > 0 {
			nHTTP, _ := cache.PurgeHTTPCacheByAge(dir, cfg.CacheMaxAge)
			nOCR, _ := cache.PurgeOCRCacheByAge(dir, cfg.CacheMaxAge)
			logger.Debug().Int("http", nHTTP).Int("ocr", nOCR).Msg("purged expired cache entries")
		}
		httpCache = &cache.HTTPCache{Dir: dir, StrictPerms: cfg.CacheStrictPerms}
		ocrCache = &cache.OCRCache{Dir: dir, StrictPerms: cfg.CacheStrictPerms}
	}

	client := o.httpClient
	if client == nil {
		client = newHTTPClient(cfg.SSLVerify)
	}
	header := http.Header{}
	header.Set("Accept-Language", "ur,en;q=0.8")
	pages := &fetch.Client{
		HTTPClient:        client,
		UserAgent:         cfg.UserAgent,
		Header:            header,
		MaxAttempts:       cfg.MaxAttempts,
		PerRequestTimeout: cfg.PageTimeout,
		MaxBodyBytes:      cfg.MaxPageBytes,
		MaxRedirects:      cfg.MaxRedirects,
		Accept:            fetch.IsTextContentType,
		Cache:             httpCache,
		BypassCache:       cfg.CacheBypass,
	}
	// Images carry no Accept gate; ocr.Decode decides what an image is.
	images := &fetch.Client{
		HTTPClient:        client,
		UserAgent:         cfg.UserAgent,
		MaxAttempts:       cfg.MaxAttempts,
		PerRequestTimeout: cfg.ImageTimeout,
		MaxBodyBytes:      cfg.MaxImageBytes,
		MaxRedirects:      cfg.MaxRedirects,
		Cache:             httpCache,
		BypassCache:       cfg.CacheBypass,
	}

	engine := o.engine
	if engine == nil {
		engine = buildEngine(cfg, logger)
	}
	reader := &ocr.Reader{
		Fetcher:  images,
		Engine:   engine,
		Language: lang.String(),
		Cache:    ocrCache,
		Log:      logger,
	}
	ex := &extract.Extractor{
		Pages:         pages,
		Images:        reader,
		ImageInterval: cfg.ImageInterval,
		Log:           logger,
	}
	if cfg.RespectRobots {
		ex.Robots = &robots.Manager{
			HTTPClient:        client,
			Cache:             httpCache,
			UserAgent:         cfg.UserAgent,
			Timeout:           cfg.PageTimeout,
			AllowPrivateHosts: cfg.AllowPrivateHosts,
		}
	}

	logger.Debug().
		Str("db", cfg.DBPath).
		Str("engine", engine.Name()).
		Str("lang", lang.String()).
		Bool("robots", cfg.RespectRobots).
		Msg("app ready")

	return &App{
		cfg:       cfg,
		store:     st,
		extractor: ex,
		reader:    reader,
		selector:  selecter.Selector{Rand: o.rand},
		engine:    engine,
		log:       logger,
	}, nil
}

func buildEngine(cfg Config, logger zerolog.Logger) ocr.Engine {
	lang, _ := ocr.ParseLanguage(cfg.OCRLanguage)
	switch strings.ToLower(strings.TrimSpace(cfg.OCREngine)) {
	case EngineNone:
		return ocr.None{}
	case EngineVision:
		return &ocr.Vision{
			Client:   llm.NewOpenAI(cfg.LLMBaseURL, cfg.LLMAPIKey),
			Model:    cfg.LLMModel,
			Language: lang,
		}
	default:
		t, err := ocr.NewTesseract(lang)
		if err != nil {
			logger.Warn().Err(err).Msg("tesseract unavailable; images will be skipped")
			return ocr.None{}
		}
		return t
	}
}

// Close releases the store and the OCR engine.
func (a *App) Close() error {
	var errs []error
	if c, ok := a.engine.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

// Scout extracts candidates from pageURL, picks one that is not stored for
// poet yet, saves it and returns it.
//
// Page and image problems are logged and lead to fewer candidates, never to
// an error. Storage failures are returned. There is no transaction between
// reading the corpus and saving, so two concurrent requests for the same
// poet may each store a different new poem.
func (a *App) Scout(ctx context.Context, poet, pageURL string) (ScoutResult, error) {
	poet = strings.TrimSpace(poet)
	pageURL = strings.TrimSpace(pageURL)
	if poet == "" || pageURL == "" {
		return ScoutResult{}, ErrMissingInput
	}
	reqID := uuid.NewString()
	logger := a.log.With().Str("req", reqID).Str("poet", poet).Str("url", pageURL).Logger()
	res := ScoutResult{RequestID: reqID, Poet: poet, SourceURL: pageURL}

	existing, err := a.store.ExistingTexts(ctx, poet)
	if err != nil {
		return res, err
	}
	logger.Debug().Int("stored", len(existing)).Msg("corpus loaded")

	// Request-scoped copies so log lines carry the request id.
	reader := *a.reader
	reader.Log = logger
	ex := *a.extractor
	ex.Images = &reader
	ex.Log = logger

	page := ex.Extract(ctx, pageURL)
	if page.Err != nil {
		logger.Warn().Err(page.Err).Str("stage", pageStage(page.Err)).Msg("page unusable; no candidates")
	}
	res.PageTitle = page.Title()

	pick, ok := a.selector.Pick(page.Candidates(ctx), existing)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if !ok {
		logger.Info().Msg("no new poem found")
		return res, nil
	}
	if err := a.store.Save(ctx, poet, pick.Text, pageURL); err != nil {
		return res, err
	}
	res.Found = true
	res.Poem = pick.Text
	res.Source = pick.Source
	res.ImageURL = pick.ImageURL
	logger.Info().
		Str("source", string(pick.Source)).
		Int("chars", utf8.RuneCountInString(pick.Text)).
		Msg("poem saved")
	return res, nil
}

func pageStage(err error) string {
	switch {
	case errors.Is(err, extract.ErrDisallowed):
		return "robots"
	case errors.Is(err, extract.ErrFetch):
		return "fetch"
	case errors.Is(err, extract.ErrParse):
		return "parse"
	default:
		return "unknown"
	}
}

// Count returns the number of poems stored for poet.
func (a *App) Count(ctx context.Context, poet string) (int, error) {
	poet = strings.TrimSpace(poet)
	if poet == "" {
		return 0, fmt.Errorf("poet name is required")
	}
	return a.store.Count(ctx, poet)
}

// Poems lists the poems stored for poet in insertion order.
func (a *App) Poems(ctx context.Context, poet string) ([]store.PoemRecord, error) {
	poet = strings.TrimSpace(poet)
	if poet == "" {
		return nil, fmt.Errorf("poet name is required")
	}
	return a.store.Poems(ctx, poet)
}
