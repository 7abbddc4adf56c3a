package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("ANALYSIS_PROVIDER", "none")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scraper.Timeout != 12*time.Second {
		t.Fatalf("scraper timeout = %v, want 12s", cfg.Scraper.Timeout)
	}
	if cfg.Analysis.Timeout != 30*time.Second {
		t.Fatalf("analysis timeout = %v, want 30s", cfg.Analysis.Timeout)
	}
	if cfg.Analysis.Provider != ProviderNone {
		t.Fatalf("provider = %q, want none", cfg.Analysis.Provider)
	}
	if cfg.ConversationLog.MaxOpenFiles != 64 {
		t.Fatalf("max open log files = %d, want 64", cfg.ConversationLog.MaxOpenFiles)
	}
}

func TestLoadRejectsProviderWithoutKey(t *testing.T) {
	t.Setenv("ANALYSIS_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for anthropic provider without key")
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("ANALYSIS_PROVIDER", "oracle9000")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION_GO", "90s")
	t.Setenv("TEST_DURATION_SECS", "45")
	t.Setenv("TEST_DURATION_BAD", "soon")

	if got := getEnvDuration("TEST_DURATION_GO", time.Second); got != 90*time.Second {
		t.Fatalf("go duration = %v", got)
	}
	if got := getEnvDuration("TEST_DURATION_SECS", time.Second); got != 45*time.Second {
		t.Fatalf("seconds duration = %v", got)
	}
	if got := getEnvDuration("TEST_DURATION_BAD", time.Second); got != time.Second {
		t.Fatalf("fallback duration = %v", got)
	}
}
