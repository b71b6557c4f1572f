package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")
	t.Setenv("VEO_MODEL", "")
	t.Setenv("VEO_POLL_INTERVAL_SECONDS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port mismatch: got %q want %q", cfg.Port, "8080")
	}
	if cfg.VeoModel != "veo-2.0-generate-001" {
		t.Fatalf("VeoModel mismatch: got %q", cfg.VeoModel)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("PollInterval mismatch: got %v want 5s", cfg.PollInterval)
	}
	if cfg.MaxPollAttempts != 0 {
		t.Fatalf("MaxPollAttempts mismatch: got %d want 0", cfg.MaxPollAttempts)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Fatalf("MaxUploadBytes mismatch: got %d want %d", cfg.MaxUploadBytes, 10<<20)
	}
}

func TestLoadConfigRequiresKeySource(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when neither DATABASE_URL nor GEMINI_API_KEY is set")
	}
}

func TestLoadConfigRejectsTightPolling(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("VEO_POLL_INTERVAL_SECONDS", "0")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for sub-second poll interval")
	}
}

func TestLoadConfigParsesOrigins(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, http://localhost:3000 ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := []string{"https://app.example.com", "http://localhost:3000"}
	if len(cfg.AllowedOrigins) != len(expected) {
		t.Fatalf("AllowedOrigins mismatch: got %#v want %#v", cfg.AllowedOrigins, expected)
	}
	for i, origin := range expected {
		if cfg.AllowedOrigins[i] != origin {
			t.Fatalf("AllowedOrigins[%d] = %q, want %q", i, cfg.AllowedOrigins[i], origin)
		}
	}
}
