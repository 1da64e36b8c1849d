package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"auto", "groq", "gemini", "openai", "openai-native", "ollama", "deepseek", "mistral"},
	"embeddings": {"openai", "ollama"},
	"stt":        {"whisper"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Analysis parameters
	a := cfg.Analysis
	if a.MinConfidence < 0 || a.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("analysis.min_confidence %.2f is out of range [0, 1]", a.MinConfidence))
	}
	if a.DedupWindowSeconds < 0 {
		errs = append(errs, fmt.Errorf("analysis.dedup_window_seconds %d must not be negative", a.DedupWindowSeconds))
	}
	if a.ContextWindow < 0 {
		errs = append(errs, fmt.Errorf("analysis.context_window %d must not be negative", a.ContextWindow))
	}
	if a.ScienceContextWindow < 0 {
		errs = append(errs, fmt.Errorf("analysis.science_context_window %d must not be negative", a.ScienceContextWindow))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)

	// Enrichment ↔ LLM cross-validation
	if cfg.Enrichment.Enabled && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("enrichment.enabled requires providers.llm to be configured"))
	}

	// Embeddings ↔ storage dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but storage.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.PostgresDSN == "" {
		slog.Warn("providers.embeddings is configured but storage.postgres_dsn is empty; similarity search will not be available")
	}

	// Storage availability
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; analysis results will not be persisted")
	}

	// Thumbnails
	if cfg.Thumbnails.VideoURL != "" && cfg.Thumbnails.OutputDir == "" {
		errs = append(errs, errors.New("thumbnails.output_dir is required when thumbnails.video_url is set"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
