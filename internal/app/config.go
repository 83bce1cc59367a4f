package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperifyio/poemscout/internal/fetch"
	"github.com/hyperifyio/poemscout/internal/ocr"
)

// OCR engine names accepted in Config.OCREngine.
const (
	EngineTesseract = "tesseract"
	EngineVision    = "vision"
	EngineNone      = "none"
)

// Config holds runtime configuration for the application.
type Config struct {
	// Storage
	DBPath string

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool
	// CacheBypass downloads fresh copies but still refreshes the cache.
	CacheBypass bool

	// HTTP
	UserAgent     string
	PageTimeout   time.Duration
	ImageTimeout  time.Duration
	MaxPageBytes  int64
	MaxImageBytes int64
	MaxAttempts   int
	MaxRedirects  int
	// ImageInterval is the minimum gap between image fetches on one page.
	ImageInterval time.Duration
	RespectRobots bool
	// AllowPrivateHosts lets robots.txt be consulted on loopback and
	// private-network hosts, e.g. an intranet mirror.
	AllowPrivateHosts bool
	SSLVerify         bool

	// OCR
	OCREngine   string
	OCRLanguage string

	// LLM, used by the vision engine
	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string

	Verbose bool
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{
		DBPath:        "poems.db",
		CacheDir:      ".poemscout-cache",
		UserAgent:     fetch.BrowserUserAgent,
		PageTimeout:   30 * time.Second,
		ImageTimeout:  15 * time.Second,
		MaxPageBytes:  10 << 20,
		MaxImageBytes: 8 << 20,
		MaxAttempts:   2,
		MaxRedirects:  fetch.DefaultMaxRedirects,
		RespectRobots: true,
		SSLVerify:     true,
		OCREngine:     EngineTesseract,
		OCRLanguage:   "ur",
	}
}

// ValidateConfig rejects settings the app cannot run with.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("config: db path is required")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.OCREngine)) {
	case EngineTesseract, EngineNone:
	case EngineVision:
		if strings.TrimSpace(cfg.LLMModel) == "" {
			return errors.New("config: llm.model is required for the vision engine (or set LLM_MODEL)")
		}
	default:
		return fmt.Errorf("config: unknown ocr engine %q (want tesseract, vision or none)", cfg.OCREngine)
	}
	if _, err := ocr.ParseLanguage(cfg.OCRLanguage); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.PageTimeout < 0 || cfg.ImageTimeout < 0 || cfg.ImageInterval < 0 || cfg.CacheMaxAge < 0 {
		return errors.New("config: negative durations are not allowed")
	}
	if cfg.MaxPageBytes < 0 || cfg.MaxImageBytes < 0 || cfg.MaxAttempts < 0 || cfg.MaxRedirects < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	return nil
}
