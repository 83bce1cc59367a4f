package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ApplyEnvOverrides overrides cfg fields with environment variables that are
// set. Env takes precedence over the config file; flags are applied after.
// Unparseable values are logged and ignored.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setDuration := func(dst *time.Duration, key string) {
		s := strings.TrimSpace(os.Getenv(key))
		if s == "" {
			return
		}
		d, err := parseDuration(s)
		if err != nil {
			log.Warn().Err(err).Str("env", key).Msg("ignoring invalid duration")
			return
		}
		*dst = d
	}
	setBool := func(dst *bool, key string) {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}

	setString(&cfg.DBPath, "POEMSCOUT_DB")
	setString(&cfg.CacheDir, "POEMSCOUT_CACHE_DIR")
	setDuration(&cfg.CacheMaxAge, "POEMSCOUT_CACHE_MAX_AGE")
	setBool(&cfg.CacheBypass, "POEMSCOUT_CACHE_BYPASS")
	setString(&cfg.UserAgent, "POEMSCOUT_USER_AGENT")
	setDuration(&cfg.PageTimeout, "POEMSCOUT_PAGE_TIMEOUT")
	setDuration(&cfg.ImageTimeout, "POEMSCOUT_IMAGE_TIMEOUT")
	setDuration(&cfg.ImageInterval, "POEMSCOUT_IMAGE_INTERVAL")
	setBool(&cfg.RespectRobots, "POEMSCOUT_RESPECT_ROBOTS")
	setBool(&cfg.AllowPrivateHosts, "POEMSCOUT_ALLOW_PRIVATE_HOSTS")
	if s := strings.TrimSpace(os.Getenv("POEMSCOUT_MAX_REDIRECTS")); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			cfg.MaxRedirects = n
		} else {
			log.Warn().Str("env", "POEMSCOUT_MAX_REDIRECTS").Str("value", s).Msg("ignoring invalid redirect limit")
		}
	}
	setBool(&cfg.SSLVerify, "SSL_VERIFY")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")

	setString(&cfg.OCREngine, "POEMSCOUT_OCR_ENGINE")
	setString(&cfg.OCRLanguage, "POEMSCOUT_OCR_LANG")

	setString(&cfg.LLMBaseURL, "LLM_BASE_URL")
	setString(&cfg.LLMModel, "LLM_MODEL")
	setString(&cfg.LLMAPIKey, "LLM_API_KEY")

	setBool(&cfg.Verbose, "VERBOSE")
}

// parseDuration accepts Go duration strings ("1m30s") and bare seconds ("90").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}
