package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig is the single-file configuration schema. Nested sections map
// onto flags and environment variables.
type FileConfig struct {
	DB string `yaml:"db" json:"db"`

	Cache struct {
		Dir         string   `yaml:"dir" json:"dir"`
		MaxAge      Duration `yaml:"maxAge" json:"maxAge"`
		Clear       bool     `yaml:"clear" json:"clear"`
		StrictPerms bool     `yaml:"strictPerms" json:"strictPerms"`
		Bypass      bool     `yaml:"bypass" json:"bypass"`
	} `yaml:"cache" json:"cache"`

	Fetch struct {
		UserAgent     string   `yaml:"userAgent" json:"userAgent"`
		PageTimeout   Duration `yaml:"pageTimeout" json:"pageTimeout"`
		ImageTimeout  Duration `yaml:"imageTimeout" json:"imageTimeout"`
		MaxPageBytes  int64    `yaml:"maxPageBytes" json:"maxPageBytes"`
		MaxImageBytes int64    `yaml:"maxImageBytes" json:"maxImageBytes"`
		MaxAttempts   int      `yaml:"maxAttempts" json:"maxAttempts"`
		MaxRedirects  int      `yaml:"maxRedirects" json:"maxRedirects"`
		ImageInterval Duration `yaml:"imageInterval" json:"imageInterval"`
		RespectRobots *bool    `yaml:"respectRobots" json:"respectRobots"`
		SSLVerify     *bool    `yaml:"sslVerify" json:"sslVerify"`
		PrivateHosts  bool     `yaml:"allowPrivateHosts" json:"allowPrivateHosts"`
	} `yaml:"fetch" json:"fetch"`

	OCR struct {
		Engine   string `yaml:"engine" json:"engine"`
		Language string `yaml:"lang" json:"lang"`
	} `yaml:"ocr" json:"ocr"`

	LLM struct {
		BaseURL string `yaml:"base" json:"base"`
		Model   string `yaml:"model" json:"model"`
		APIKey  string `yaml:"key" json:"key"`
	} `yaml:"llm" json:"llm"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// Duration accepts "30s"-style strings or a bare number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n * float64(time.Second)))
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	v, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// YAML is a superset of JSON for our purposes.
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse config: %w", err)
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays the values set in fc onto cfg. It runs before env
// overrides and flags, so anything it sets can still be replaced by those.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setDuration := func(dst *time.Duration, v Duration) {
		if v > 0 {
			*dst = time.Duration(v)
		}
	}
	setInt64 := func(dst *int64, v int64) {
		if v > 0 {
			*dst = v
		}
	}

	setString(&cfg.DBPath, fc.DB)

	setString(&cfg.CacheDir, fc.Cache.Dir)
	setDuration(&cfg.CacheMaxAge, fc.Cache.MaxAge)
	cfg.CacheClear = cfg.CacheClear || fc.Cache.Clear
	cfg.CacheStrictPerms = cfg.CacheStrictPerms || fc.Cache.StrictPerms
	cfg.CacheBypass = cfg.CacheBypass || fc.Cache.Bypass

	setString(&cfg.UserAgent, fc.Fetch.UserAgent)
	setDuration(&cfg.PageTimeout, fc.Fetch.PageTimeout)
	setDuration(&cfg.ImageTimeout, fc.Fetch.ImageTimeout)
	setDuration(&cfg.ImageInterval, fc.Fetch.ImageInterval)
	setInt64(&cfg.MaxPageBytes, fc.Fetch.MaxPageBytes)
	setInt64(&cfg.MaxImageBytes, fc.Fetch.MaxImageBytes)
	if fc.Fetch.MaxAttempts > 0 {
		cfg.MaxAttempts = fc.Fetch.MaxAttempts
	}
	if fc.Fetch.MaxRedirects > 0 {
		cfg.MaxRedirects = fc.Fetch.MaxRedirects
	}
	cfg.AllowPrivateHosts = cfg.AllowPrivateHosts || fc.Fetch.PrivateHosts
	if fc.Fetch.RespectRobots != nil {
		cfg.RespectRobots = *fc.Fetch.RespectRobots
	}
	if fc.Fetch.SSLVerify != nil {
		cfg.SSLVerify = *fc.Fetch.SSLVerify
	}

	setString(&cfg.OCREngine, fc.OCR.Engine)
	setString(&cfg.OCRLanguage, fc.OCR.Language)

	setString(&cfg.LLMBaseURL, fc.LLM.BaseURL)
	setString(&cfg.LLMModel, fc.LLM.Model)
	setString(&cfg.LLMAPIKey, fc.LLM.APIKey)

	cfg.Verbose = cfg.Verbose || fc.Verbose
}
