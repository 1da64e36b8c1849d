package config_test

import (
	"testing"

	"github.com/anavidal/bentos/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:     config.ServerConfig{LogLevel: config.LogInfo},
		Analysis:   config.AnalysisConfig{MinConfidence: 0.6},
		Expedition: "Cañón de Mar del Plata",
	}
	d := config.Diff(cfg, cfg)
	if d.Any() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
}

func TestDiff_AnalysisChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Analysis: config.AnalysisConfig{MinConfidence: 0.6, DedupWindowSeconds: 300}}
	new := &config.Config{Analysis: config.AnalysisConfig{MinConfidence: 0.8, DedupWindowSeconds: 300}}

	d := config.Diff(old, new)
	if !d.AnalysisChanged {
		t.Fatal("expected AnalysisChanged=true")
	}
	if d.NewAnalysis.MinConfidence != 0.8 {
		t.Errorf("NewAnalysis.MinConfidence = %v, want 0.8", d.NewAnalysis.MinConfidence)
	}
	if d.LogLevelChanged {
		t.Error("log level did not change but was flagged")
	}
}

func TestDiff_ExpeditionChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Expedition: "Cañón de Mar del Plata"}
	new := &config.Config{Expedition: "Talud Continental II"}

	d := config.Diff(old, new)
	if !d.ExpeditionChanged {
		t.Fatal("expected ExpeditionChanged=true")
	}
	if d.NewExpedition != "Talud Continental II" {
		t.Errorf("NewExpedition = %q", d.NewExpedition)
	}
}

func TestDiff_EnrichmentChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	new := &config.Config{Enrichment: config.EnrichmentConfig{Enabled: true, MaxTokens: 400}}

	d := config.Diff(old, new)
	if !d.EnrichmentChanged {
		t.Fatal("expected EnrichmentChanged=true")
	}
	if !d.NewEnrichment.Enabled {
		t.Error("NewEnrichment.Enabled = false, want true")
	}
	if !d.Any() {
		t.Error("Any() = false, want true")
	}
}
