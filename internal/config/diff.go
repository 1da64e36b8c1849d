package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider, storage,
// and server wiring changes require a restart and are ignored here.
type ConfigDiff struct {
	LogLevelChanged   bool
	NewLogLevel       LogLevel
	AnalysisChanged   bool
	NewAnalysis       AnalysisConfig
	ExpeditionChanged bool
	NewExpedition     string
	EnrichmentChanged bool
	NewEnrichment     EnrichmentConfig
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.AnalysisChanged || d.ExpeditionChanged || d.EnrichmentChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Analysis != new.Analysis {
		d.AnalysisChanged = true
		d.NewAnalysis = new.Analysis
	}

	if old.Expedition != new.Expedition {
		d.ExpeditionChanged = true
		d.NewExpedition = new.Expedition
	}

	if old.Enrichment != new.Enrichment {
		d.EnrichmentChanged = true
		d.NewEnrichment = new.Enrichment
	}

	return d
}
