package config_test

import (
	"strings"
	"testing"

	"github.com/anavidal/bentos/internal/config"
)

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_MinConfidenceOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
analysis:
  min_confidence: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for min_confidence > 1, got nil")
	}
	if !strings.Contains(err.Error(), "min_confidence") {
		t.Errorf("error should mention min_confidence, got: %v", err)
	}
}

func TestValidate_NegativeWindows(t *testing.T) {
	t.Parallel()
	yaml := `
analysis:
  dedup_window_seconds: -1
  context_window: -5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative windows, got nil")
	}
	// Both failures must be reported in the joined error.
	if !strings.Contains(err.Error(), "dedup_window_seconds") {
		t.Errorf("error should mention dedup_window_seconds, got: %v", err)
	}
	if !strings.Contains(err.Error(), "context_window") {
		t.Errorf("error should mention context_window, got: %v", err)
	}
}

func TestValidate_EnrichmentRequiresLLM(t *testing.T) {
	t.Parallel()
	yaml := `
enrichment:
  enabled: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for enrichment without llm provider, got nil")
	}
	if !strings.Contains(err.Error(), "providers.llm") {
		t.Errorf("error should mention providers.llm, got: %v", err)
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: /etc/bentos/cert.pem
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for tls with missing key_file, got nil")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Errorf("error should mention key_file, got: %v", err)
	}
}

func TestValidate_ThumbnailsRequireOutputDir(t *testing.T) {
	t.Parallel()
	yaml := `
thumbnails:
  video_url: "https://www.youtube.com/watch?v=abc123"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for thumbnails without output_dir, got nil")
	}
	if !strings.Contains(err.Error(), "output_dir") {
		t.Errorf("error should mention output_dir, got: %v", err)
	}
}

func TestValidate_MinimalConfigPasses(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("minimal config should validate, got: %v", err)
	}
	if cfg.Analysis.MinConfidence != 0 {
		t.Errorf("unset min_confidence = %v, want 0 (pipeline default applies later)", cfg.Analysis.MinConfidence)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/bentos.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
