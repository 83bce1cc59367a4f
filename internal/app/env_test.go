package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// LoadEnvFiles reads KEY=VALUE pairs into the process environment.
func TestLoadEnvFiles_LoadsKeyValues(t *testing.T) {
	t.Setenv("FOO", "")
	t.Setenv("BAR", "")
	t.Setenv("BAZ", "")

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "\n# sample dotenv file\nFOO=alpha\nexport BAR=\"beta gamma\"\nBAZ='x=y'\nnot a pair\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	if err := LoadEnvFiles(envPath, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnvFiles error: %v", err)
	}
	for key, want := range map[string]string{"FOO": "alpha", "BAR": "beta gamma", "BAZ": "x=y"} {
		if got := os.Getenv(key); got != want {
			t.Fatalf("%s=%q, want %q", key, got, want)
		}
	}
}

// Later files override earlier ones when loading multiple dotenv files.
func TestLoadEnvFiles_OverrideOrder(t *testing.T) {
	t.Setenv("K", "")
	dir := t.TempDir()
	a := filepath.Join(dir, ".env.a")
	b := filepath.Join(dir, ".env.b")
	if err := os.WriteFile(a, []byte("K=first\n"), 0o600); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := os.WriteFile(b, []byte("K=second\n"), 0o600); err != nil {
		t.Fatalf("write b: %v", err)
	}
	if err := LoadEnvFiles(a, b); err != nil {
		t.Fatalf("LoadEnvFiles error: %v", err)
	}
	if got := os.Getenv("K"); got != "second" {
		t.Fatalf("override order failed: got %q, want second", got)
	}
}

func TestApplyEnvOverrides_FromEnv(t *testing.T) {
	t.Setenv("POEMSCOUT_DB", "/var/lib/poemscout/poems.db")
	t.Setenv("POEMSCOUT_CACHE_DIR", "/tmp/poemscout-cache")
	t.Setenv("POEMSCOUT_OCR_ENGINE", "vision")
	t.Setenv("POEMSCOUT_OCR_LANG", "ur-PK")
	t.Setenv("POEMSCOUT_PAGE_TIMEOUT", "45s")
	t.Setenv("POEMSCOUT_IMAGE_TIMEOUT", "20")
	t.Setenv("POEMSCOUT_RESPECT_ROBOTS", "false")
	t.Setenv("LLM_MODEL", "llava:13b")
	t.Setenv("VERBOSE", "yes")
	t.Setenv("POEMSCOUT_USER_AGENT", "")
	t.Setenv("POEMSCOUT_CACHE_BYPASS", "1")
	t.Setenv("POEMSCOUT_MAX_REDIRECTS", "3")
	t.Setenv("POEMSCOUT_ALLOW_PRIVATE_HOSTS", "true")

	cfg := DefaultConfig()
	ApplyEnvOverrides(&cfg)

	if cfg.DBPath != "/var/lib/poemscout/poems.db" || cfg.CacheDir != "/tmp/poemscout-cache" {
		t.Fatalf("paths not applied: %+v", cfg)
	}
	if cfg.OCREngine != EngineVision || cfg.OCRLanguage != "ur-PK" || cfg.LLMModel != "llava:13b" {
		t.Fatalf("ocr settings not applied: %+v", cfg)
	}
	if cfg.PageTimeout != 45*time.Second || cfg.ImageTimeout != 20*time.Second {
		t.Fatalf("timeouts: page=%v image=%v", cfg.PageTimeout, cfg.ImageTimeout)
	}
	if cfg.RespectRobots {
		t.Fatalf("POEMSCOUT_RESPECT_ROBOTS=false should disable robots")
	}
	if !cfg.CacheBypass || cfg.MaxRedirects != 3 || !cfg.AllowPrivateHosts {
		t.Fatalf("bypass/redirect/private-host env not applied: %+v", cfg)
	}
	if !cfg.Verbose {
		t.Fatalf("VERBOSE=yes should enable verbose")
	}
	if cfg.UserAgent != DefaultConfig().UserAgent {
		t.Fatalf("empty env must not clear the user agent")
	}
}

func TestApplyEnvOverrides_InvalidDurationIgnored(t *testing.T) {
	t.Setenv("POEMSCOUT_PAGE_TIMEOUT", "soon")
	cfg := DefaultConfig()
	ApplyEnvOverrides(&cfg)
	if cfg.PageTimeout != 30*time.Second {
		t.Fatalf("invalid duration should keep default, got %v", cfg.PageTimeout)
	}
}
