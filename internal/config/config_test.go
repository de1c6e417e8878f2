package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", "")
	os.Setenv("CEREBRAS_MODEL_ID", "")
	os.Setenv("WHISPER_BIN", "")
	cfg := Load()
	if cfg.HTTPAddress == "" {
		t.Fatalf("expected default http address")
	}
	if cfg.CerebrasModelID == "" {
		t.Fatalf("expected default cerebras model id")
	}
	if cfg.WhisperBin != "whisper" {
		t.Fatalf("expected default whisper binary, got %q", cfg.WhisperBin)
	}
}

func TestLoad_TimingOverrides(t *testing.T) {
	os.Setenv("NO_ANSWER_TIMEOUT_MS", "2500")
	os.Setenv("SILENCE_DEBOUNCE_MS", "bogus")
	defer os.Unsetenv("NO_ANSWER_TIMEOUT_MS")
	defer os.Unsetenv("SILENCE_DEBOUNCE_MS")

	cfg := Load()
	if cfg.NoAnswerTimeout != 2500*time.Millisecond {
		t.Fatalf("expected 2.5s timeout override, got %v", cfg.NoAnswerTimeout)
	}
	if cfg.SilenceDebounce != 0 {
		t.Fatalf("invalid override must fall back to zero, got %v", cfg.SilenceDebounce)
	}
}
