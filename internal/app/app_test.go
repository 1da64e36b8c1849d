package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anavidal/bentos/internal/config"
	sightingsmock "github.com/anavidal/bentos/internal/sightings/mock"
	embedmock "github.com/anavidal/bentos/pkg/provider/embeddings/mock"
	"github.com/anavidal/bentos/pkg/provider/llm"
	llmmock "github.com/anavidal/bentos/pkg/provider/llm/mock"
	sttmock "github.com/anavidal/bentos/pkg/provider/stt/mock"
	"github.com/anavidal/bentos/pkg/types"
)

const testTranscript = `[00:01:00.000 --> 00:01:10.000] Vimos un pulpo cerca del fondo rocoso
[00:10:00.000 --> 00:10:05.000] También apareció una estrella de mar sobre la arena
`

func testConfig() *config.Config {
	return &config.Config{
		Server:     config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Expedition: "Expedición de prueba",
	}
}

func newTestApp(t *testing.T, cfg *config.Config, providers *Providers, opts ...Option) *App {
	t.Helper()
	if providers == nil {
		providers = &Providers{}
	}
	a, err := New(t.Context(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestAnalyzeText_PublishesAndPersists(t *testing.T) {
	t.Parallel()

	store := &sightingsmock.Store{}
	a := newTestApp(t, testConfig(), nil, WithStore(store))

	report, err := a.AnalyzeText(t.Context(), testTranscript)
	if err != nil {
		t.Fatalf("AnalyzeText: %v", err)
	}
	if len(report.Species) == 0 {
		t.Fatal("no species extracted")
	}
	if got := report.Metadata.Expedition; got != "Expedición de prueba" {
		t.Errorf("expedition = %q, want Expedición de prueba", got)
	}

	names := make(map[string]bool)
	for _, m := range report.Species {
		names[m.CommonName] = true
	}
	if !names["pulpo"] || !names["estrella de mar"] {
		t.Errorf("species = %v, want pulpo and estrella de mar", names)
	}

	// The server must serve what was just analyzed.
	if a.Report() != report {
		t.Error("served report differs from analysis result")
	}

	// The run must be persisted.
	runs, err := store.ListRuns(t.Context(), 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if runs[0].TotalSpecies != len(report.Species) {
		t.Errorf("persisted species = %d, want %d", runs[0].TotalSpecies, len(report.Species))
	}
}

func TestAnalyzeText_WithoutStore(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(), nil)

	report, err := a.AnalyzeText(t.Context(), testTranscript)
	if err != nil {
		t.Fatalf("AnalyzeText: %v", err)
	}
	if len(report.Species) == 0 {
		t.Fatal("no species extracted")
	}
}

func TestAnalyzeText_Enrichment(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Enrichment = config.EnrichmentConfig{Enabled: true, MaxTokens: 256}
	provider := &llmmock.Provider{
		Response: llm.CompletionResponse{Content: "Una descripción ecológica."},
	}
	a := newTestApp(t, cfg, &Providers{LLM: provider})

	report, err := a.AnalyzeText(t.Context(), testTranscript)
	if err != nil {
		t.Fatalf("AnalyzeText: %v", err)
	}
	if provider.CallCount() == 0 {
		t.Fatal("LLM provider never called")
	}
	for _, m := range report.Species {
		if m.Description != "Una descripción ecológica." {
			t.Errorf("species %q description = %q", m.CommonName, m.Description)
		}
	}
}

func TestAnalyzeText_EnrichmentWithoutLLM(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Enrichment = config.EnrichmentConfig{Enabled: true}
	a := newTestApp(t, cfg, nil)

	// Enrichment silently disabled; analysis still works.
	report, err := a.AnalyzeText(t.Context(), testTranscript)
	if err != nil {
		t.Fatalf("AnalyzeText: %v", err)
	}
	for _, m := range report.Species {
		if m.Description != "" {
			t.Errorf("unexpected description on %q", m.CommonName)
		}
	}
}

func TestAnalyzeAudio(t *testing.T) {
	t.Parallel()

	sttProvider := &sttmock.Provider{
		Segments: []types.TranscriptSegment{
			{Start: 60 * time.Second, End: 70 * time.Second, Text: "vimos un pulpo gigante"},
		},
	}
	a := newTestApp(t, testConfig(), &Providers{STT: sttProvider})

	report, err := a.AnalyzeAudio(t.Context(), make([]float32, 16000))
	if err != nil {
		t.Fatalf("AnalyzeAudio: %v", err)
	}
	if sttProvider.CallCount() != 1 {
		t.Errorf("stt calls = %d, want 1", sttProvider.CallCount())
	}
	if len(report.Species) != 1 || report.Species[0].CommonName != "pulpo" {
		t.Fatalf("species = %+v, want one pulpo", report.Species)
	}
	if got := report.Species[0].Timestamp; got != "00:01:00.000" {
		t.Errorf("timestamp = %q, want 00:01:00.000", got)
	}
}

func TestAnalyzeAudio_RequiresSTT(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(), nil)
	if _, err := a.AnalyzeAudio(t.Context(), make([]float32, 16000)); err == nil {
		t.Fatal("expected error without an stt provider")
	}
}

func TestAnalyzeAudio_TranscribeError(t *testing.T) {
	t.Parallel()

	sttProvider := &sttmock.Provider{Err: errors.New("model not loaded")}
	a := newTestApp(t, testConfig(), &Providers{STT: sttProvider})

	if _, err := a.AnalyzeAudio(t.Context(), make([]float32, 16000)); err == nil {
		t.Fatal("expected transcription error to propagate")
	}
}

func TestEmbedSightings(t *testing.T) {
	t.Parallel()

	store := &sightingsmock.Store{}
	embedder := &embedmock.Provider{
		EmbedBatchResult: [][]float32{
			{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 0}, {0, 1, 1},
		},
		DimensionsValue: 3,
	}
	a := newTestApp(t, testConfig(), &Providers{Embeddings: embedder},
		WithStore(store))

	if _, err := a.AnalyzeText(t.Context(), testTranscript); err != nil {
		t.Fatalf("AnalyzeText: %v", err)
	}

	similar, err := store.SearchSimilar(t.Context(), []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(similar) != 1 {
		t.Fatalf("similar = %d, want 1 (embeddings not attached?)", len(similar))
	}
}

func TestSearchSimilar(t *testing.T) {
	t.Parallel()

	store := &sightingsmock.Store{}
	embedder := &embedmock.Provider{
		EmbedResult:      []float32{1, 0, 0},
		EmbedBatchResult: [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 0}, {0, 1, 1}},
		DimensionsValue:  3,
	}
	a := newTestApp(t, testConfig(), &Providers{Embeddings: embedder},
		WithStore(store))

	if _, err := a.AnalyzeText(t.Context(), testTranscript); err != nil {
		t.Fatalf("AnalyzeText: %v", err)
	}

	similar, err := a.searchSimilar(t.Context(), "cefalópodo", 2)
	if err != nil {
		t.Fatalf("searchSimilar: %v", err)
	}
	if len(similar) == 0 {
		t.Fatal("no similar sightings returned")
	}
	if similar[0].Distance != 0 {
		t.Errorf("best distance = %f, want 0 (identical vector)", similar[0].Distance)
	}
}

func TestNew_SeedsReportFromStore(t *testing.T) {
	t.Parallel()

	store := &sightingsmock.Store{}
	report := &types.Report{
		Metadata: types.ReportMetadata{TotalSpecies: 1, PhylaCount: 1},
		Species: []types.Mention{
			{CommonName: "pulpo", Phylum: "Mollusca", Timestamp: "00:01:00.000", Confidence: 0.9},
		},
	}
	if _, _, err := store.SaveRun(context.Background(), "Expedición previa", time.Now(), report); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	a := newTestApp(t, testConfig(), nil, WithStore(store))

	seeded := a.Report()
	if seeded == nil {
		t.Fatal("report not seeded from store")
	}
	if seeded.Metadata.Expedition != "Expedición previa" {
		t.Errorf("expedition = %q", seeded.Metadata.Expedition)
	}
	if len(seeded.Species) != 1 || seeded.Species[0].CommonName != "pulpo" {
		t.Errorf("species = %+v", seeded.Species)
	}
	if len(seeded.Taxonomy["Mollusca"]) != 1 {
		t.Errorf("taxonomy view not rebuilt: %v", seeded.Taxonomy)
	}
}

func TestApplyConfig_Expedition(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(), nil)
	a.ApplyConfig(config.ConfigDiff{ExpeditionChanged: true, NewExpedition: "Expedición Norte"})

	report, err := a.AnalyzeText(t.Context(), testTranscript)
	if err != nil {
		t.Fatalf("AnalyzeText: %v", err)
	}
	if got := report.Metadata.Expedition; got != "Expedición Norte" {
		t.Errorf("expedition = %q, want Expedición Norte", got)
	}
}

func TestApplyConfig_Analysis(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(), nil)

	// A confidence floor above every strategy's score leaves nothing.
	a.ApplyConfig(config.ConfigDiff{
		AnalysisChanged: true,
		NewAnalysis:     config.AnalysisConfig{MinConfidence: 0.99},
	})

	report, err := a.AnalyzeText(t.Context(), testTranscript)
	if err != nil {
		t.Fatalf("AnalyzeText: %v", err)
	}
	if len(report.Species) != 0 {
		t.Errorf("species = %d, want 0 after raising min_confidence", len(report.Species))
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(), nil, WithStore(&sightingsmock.Store{}))

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
