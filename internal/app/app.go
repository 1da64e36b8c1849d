// Package app wires all bentos subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Analyze* methods run the pipeline end to end, Run serves the
// HTTP API, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithMetrics, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/anavidal/bentos/internal/analyze"
	"github.com/anavidal/bentos/internal/config"
	"github.com/anavidal/bentos/internal/enrich"
	"github.com/anavidal/bentos/internal/health"
	"github.com/anavidal/bentos/internal/mcp"
	"github.com/anavidal/bentos/internal/observe"
	"github.com/anavidal/bentos/internal/server"
	"github.com/anavidal/bentos/internal/sightings"
	sightingsmock "github.com/anavidal/bentos/internal/sightings/mock"
	"github.com/anavidal/bentos/internal/sightings/postgres"
	"github.com/anavidal/bentos/internal/species"
	"github.com/anavidal/bentos/internal/subtitle"
	"github.com/anavidal/bentos/internal/thumbs"
	"github.com/anavidal/bentos/pkg/provider/embeddings"
	"github.com/anavidal/bentos/pkg/provider/llm"
	"github.com/anavidal/bentos/pkg/provider/stt"
	"github.com/anavidal/bentos/pkg/types"
)

// defaultEmbeddingDimensions matches OpenAI text-embedding-3-small, the most
// common embeddings configuration.
const defaultEmbeddingDimensions = 1536

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider
	STT        stt.Provider
}

// App owns all subsystem lifetimes and orchestrates the analysis pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	version   string

	// Subsystems — initialised in New, torn down in Shutdown.
	store sightings.Store
	srv   *server.Server
	gen   *thumbs.Generator

	// mu guards the hot-reloadable pieces: analyzer, enricher, expedition.
	mu         sync.Mutex
	analyzer   *analyze.Analyzer
	enricher   *enrich.Enricher
	expedition string

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a sightings store instead of creating one from config.
func WithStore(s sightings.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithVersion sets the version reported by the MCP server. Defaults to "dev".
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: sightings store connection,
// HTTP server construction, pipeline assembly, and (when a store holds
// earlier runs) seeding the served report from the latest one.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:        cfg,
		providers:  providers,
		version:    "dev",
		expedition: cfg.Expedition,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Sightings store ───────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. HTTP server ───────────────────────────────────────────────────
	a.initServer()

	// ── 3. Pipeline: analyzer + enricher ─────────────────────────────────
	a.buildPipeline(cfg.Analysis, cfg.Enrichment)

	// ── 4. Thumbnail generator ───────────────────────────────────────────
	a.initThumbnails()

	// ── 5. Seed the served report from the latest stored run ─────────────
	if err := a.seedFromStore(ctx); err != nil {
		return nil, fmt.Errorf("app: seed report: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore connects to PostgreSQL when a DSN is configured and no store was
// injected. Without a DSN, analyses still run; they just aren't persisted.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}

	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		slog.Info("no postgres_dsn configured, running without persistence")
		return nil
	}

	dims := a.cfg.Storage.EmbeddingDimensions
	if dims == 0 {
		dims = defaultEmbeddingDimensions
	}

	store, err := postgres.NewStore(ctx, dsn, dims)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initServer builds the HTTP server with whatever the config enables:
// static frontend, thumbnails, run history, and a database readiness check.
func (a *App) initServer() {
	srvCfg := server.Config{
		ListenAddr:   a.cfg.Server.ListenAddr,
		StaticDir:    a.cfg.Server.StaticDir,
		ThumbnailDir: a.cfg.Thumbnails.OutputDir,
	}
	if tls := a.cfg.Server.TLS; tls != nil {
		srvCfg.TLSCertFile = tls.CertFile
		srvCfg.TLSKeyFile = tls.KeyFile
	}

	srvOpts := []server.Option{server.WithMetrics(a.metrics)}
	if a.store != nil {
		srvOpts = append(srvOpts, server.WithStore(a.store))
	}
	if a.store != nil && a.providers.Embeddings != nil {
		srvOpts = append(srvOpts, server.WithSimilarity(a.searchSimilar))
	}
	if pinger, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		srvOpts = append(srvOpts, server.WithHealthChecks(health.Checker{
			Name:  "database",
			Check: pinger.Ping,
		}))
	}

	a.srv = server.New(srvCfg, srvOpts...)
}

// buildPipeline (re)constructs the analyzer and enricher from the given
// sections. Called from New and again on hot reload.
func (a *App) buildPipeline(analysis config.AnalysisConfig, enrichment config.EnrichmentConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.analyzer = analyze.New(analyze.Config{
		MinConfidence: analysis.MinConfidence,
		DedupWindow:   time.Duration(analysis.DedupWindowSeconds) * time.Second,
		ContextWindow: analysis.ContextWindow,
		ScienceWindow: analysis.ScienceContextWindow,
		Parallel:      analysis.Parallel,
	},
		analyze.WithMetrics(a.metrics),
		analyze.WithSuggester(species.NewSuggester(nil)),
		analyze.WithProgress(a.srv.Publish),
	)

	a.enricher = nil
	if !enrichment.Enabled {
		return
	}
	if a.providers.LLM == nil {
		slog.Warn("enrichment enabled but no LLM provider configured, skipping")
		return
	}
	enrichOpts := []enrich.Option{
		enrich.WithMetrics(a.metrics),
		enrich.WithProgress(a.srv.Publish),
	}
	if enrichment.MaxTokens > 0 {
		enrichOpts = append(enrichOpts, enrich.WithMaxTokens(enrichment.MaxTokens))
	}
	a.enricher = enrich.New(a.providers.LLM, enrichOpts...)
}

// initThumbnails creates the frame generator when an expedition video is
// configured. A missing yt-dlp or ffmpeg downgrades to a warning: analysis
// works without thumbnails.
func (a *App) initThumbnails() {
	if a.cfg.Thumbnails.VideoURL == "" {
		return
	}

	gen := thumbs.New(thumbs.Config{
		VideoURL:   a.cfg.Thumbnails.VideoURL,
		OutputDir:  a.cfg.Thumbnails.OutputDir,
		YtDlpPath:  a.cfg.Thumbnails.YtDlpPath,
		FfmpegPath: a.cfg.Thumbnails.FfmpegPath,
	}, thumbs.WithMetrics(a.metrics))

	if err := gen.CheckTools(); err != nil {
		slog.Warn("thumbnail tools unavailable, disabling thumbnails", "err", err)
		return
	}
	a.gen = gen

	// Serve a previously generated index right away.
	indexPath := filepath.Join(a.cfg.Thumbnails.OutputDir, thumbs.IndexFilename)
	if idx, err := thumbs.LoadIndex(indexPath); err == nil && len(idx) > 0 {
		a.srv.SetThumbnails(idx)
	}
}

// seedFromStore publishes the most recent stored run so the API serves data
// immediately after a restart. No stored runs is not an error.
func (a *App) seedFromStore(ctx context.Context) error {
	if a.store == nil {
		return nil
	}

	run, err := a.store.LatestRun(ctx)
	if errors.Is(err, sightings.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	list, err := a.store.ListSightings(ctx, run.ID, sightings.Filter{})
	if err != nil {
		return err
	}

	report := reportFromRun(run, list)
	a.srv.SetReport(report)
	slog.Info("seeded report from stored run",
		"run_id", run.ID, "expedition", run.Expedition, "species", run.TotalSpecies)
	return nil
}

// reportFromRun reconstructs a serveable report from a persisted run. The
// unknown-review list is recovered from the unknown-phylum sightings.
func reportFromRun(run *sightings.Run, list []sightings.Sighting) *types.Report {
	mentions := make([]types.Mention, 0, len(list))
	var unknown []types.Mention
	var sum float64
	for _, st := range list {
		mentions = append(mentions, st.Mention)
		sum += st.Mention.Confidence
		if st.Mention.Phylum == species.UnknownPhylum {
			unknown = append(unknown, st.Mention)
		}
	}

	avg := 0.0
	if len(mentions) > 0 {
		avg = sum / float64(len(mentions))
	}

	r := &types.Report{
		Metadata: types.ReportMetadata{
			Expedition:          run.Expedition,
			AnalysisDate:        run.AnalyzedAt.Format(time.RFC3339),
			TotalSpecies:        run.TotalSpecies,
			PhylaCount:          run.PhylaCount,
			Method:              "text_processing",
			UnknownSpeciesCount: run.UnknownCount,
			AverageConfidence:   avg,
		},
		Species: mentions,
		Unknown: unknown,
	}
	r.RebuildTaxonomy()
	return r
}

// ─── Analysis ────────────────────────────────────────────────────────────────

// AnalyzeFile reads a transcript file and runs the full pipeline over it.
func (a *App) AnalyzeFile(ctx context.Context, path string) (*types.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("app: read transcript: %w", err)
	}
	return a.AnalyzeText(ctx, string(data))
}

// AnalyzeText runs extraction, enrichment, persistence, and thumbnail
// generation over a transcript, publishes the report to the HTTP server, and
// returns it. Enrichment and thumbnails are best effort; persistence errors
// are fatal because a configured store is expected to work.
func (a *App) AnalyzeText(ctx context.Context, transcript string) (*types.Report, error) {
	a.mu.Lock()
	analyzer, enricher, expedition := a.analyzer, a.enricher, a.expedition
	a.mu.Unlock()

	result, err := analyzer.Analyze(ctx, transcript)
	if err != nil {
		return nil, fmt.Errorf("app: analyze: %w", err)
	}
	report := analyze.BuildReport(result, expedition, time.Now())

	if enricher != nil {
		n, err := enricher.EnrichReport(ctx, report)
		if err != nil {
			return nil, fmt.Errorf("app: enrich: %w", err)
		}
		slog.Info("report enriched", "described", n, "species", len(report.Species))
	}

	if err := a.persist(ctx, report, expedition); err != nil {
		return nil, err
	}

	a.generateThumbnails(ctx, report)

	a.srv.SetReport(report)
	a.srv.Publish(types.ProgressEvent{
		Stage:   "report",
		Message: "análisis completado",
		Count:   len(report.Species),
		At:      time.Now(),
	})
	return report, nil
}

// AnalyzeAudio transcribes a recording with the configured STT provider,
// serializes the segments into marker text, and analyzes that transcript.
// Samples must be mono float32 at [stt.SampleRate] Hz.
func (a *App) AnalyzeAudio(ctx context.Context, samples []float32) (*types.Report, error) {
	if a.providers.STT == nil {
		return nil, errors.New("app: audio analysis requires an stt provider")
	}

	start := time.Now()
	segments, err := a.providers.STT.Transcribe(ctx, samples, "")
	a.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		a.metrics.RecordProviderError(ctx, a.providers.STT.Name(), "stt")
		return nil, fmt.Errorf("app: transcribe: %w", err)
	}
	a.metrics.RecordProviderRequest(ctx, a.providers.STT.Name(), "stt", "ok")
	slog.Info("audio transcribed", "segments", len(segments),
		"duration", time.Since(start).Round(time.Millisecond))

	return a.AnalyzeText(ctx, subtitle.RenderSegments(segments))
}

// persist saves the run when a store is configured and attaches context
// embeddings when an embeddings provider is available.
func (a *App) persist(ctx context.Context, report *types.Report, expedition string) error {
	if a.store == nil {
		return nil
	}

	run, stored, err := a.store.SaveRun(ctx, report.Metadata.Expedition, time.Now(), report)
	if err != nil {
		return fmt.Errorf("app: save run: %w", err)
	}
	slog.Info("run persisted", "run_id", run.ID, "expedition", expedition, "sightings", len(stored))

	a.embedSightings(ctx, stored)
	return nil
}

// embedSightings computes context embeddings for stored sightings so similar
// past sightings can be searched across runs. Best effort: embedding failures
// are logged, not returned.
func (a *App) embedSightings(ctx context.Context, stored []sightings.Sighting) {
	ep := a.providers.Embeddings
	if ep == nil || len(stored) == 0 {
		return
	}

	texts := make([]string, len(stored))
	for i, st := range stored {
		texts[i] = st.Mention.CommonName + ": " + st.Mention.Context
	}

	vectors, err := ep.EmbedBatch(ctx, texts)
	if err != nil {
		a.metrics.RecordProviderError(ctx, "embeddings", "embed")
		slog.Warn("context embedding failed, sightings saved without vectors", "err", err)
		return
	}
	a.metrics.RecordProviderRequest(ctx, "embeddings", "embed", "ok")

	for i, st := range stored {
		if i >= len(vectors) {
			break
		}
		if err := a.store.SetEmbedding(ctx, st.ID, vectors[i]); err != nil {
			slog.Warn("failed to attach embedding", "sighting_id", st.ID, "err", err)
		}
	}
}

// searchSimilar embeds a free-text query and finds the stored sightings with
// the closest context embeddings across all runs.
func (a *App) searchSimilar(ctx context.Context, query string, topK int) ([]sightings.SimilarSighting, error) {
	vec, err := a.providers.Embeddings.Embed(ctx, query)
	if err != nil {
		a.metrics.RecordProviderError(ctx, "embeddings", "embed")
		return nil, fmt.Errorf("app: embed query: %w", err)
	}
	return a.store.SearchSimilar(ctx, vec, topK)
}

// generateThumbnails grabs video frames for the report's sightings and
// publishes the resulting index. Best effort.
func (a *App) generateThumbnails(ctx context.Context, report *types.Report) {
	if a.gen == nil {
		return
	}
	idx, err := a.gen.Generate(ctx, report)
	if err != nil {
		slog.Warn("thumbnail generation failed", "err", err)
		return
	}
	a.srv.SetThumbnails(idx)
	slog.Info("thumbnails generated", "count", len(idx))
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API and blocks until ctx is cancelled or the server
// fails.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running", "listen_addr", a.cfg.Server.ListenAddr)
	return a.srv.Run(ctx)
}

// RunMCP serves the MCP stdio server over the sightings store and blocks
// until ctx is cancelled or the client disconnects. Without a configured
// store, the current in-memory report (if any) is exposed through a
// transient store so MCP clients can still query the last analysis.
func (a *App) RunMCP(ctx context.Context) error {
	store := a.store
	if store == nil {
		mem := &sightingsmock.Store{}
		if report := a.srv.Report(); report != nil {
			expedition := report.Metadata.Expedition
			if _, _, err := mem.SaveRun(ctx, expedition, time.Now(), report); err != nil {
				return fmt.Errorf("app: stage report for mcp: %w", err)
			}
		}
		store = mem
	}
	return mcp.New(store, a.version, mcp.WithMetrics(a.metrics)).Run(ctx)
}

// Report returns the currently served report, or nil before the first
// analysis.
func (a *App) Report() *types.Report {
	return a.srv.Report()
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies a hot-reloadable config diff: analysis parameters,
// enrichment settings, and the expedition name. Log level changes are
// handled by main. Provider, storage, and server changes require a restart.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if !d.Any() {
		return
	}

	if d.ExpeditionChanged {
		a.mu.Lock()
		a.expedition = d.NewExpedition
		a.mu.Unlock()
		slog.Info("expedition updated", "expedition", d.NewExpedition)
	}

	if d.AnalysisChanged || d.EnrichmentChanged {
		if d.AnalysisChanged {
			a.cfg.Analysis = d.NewAnalysis
		}
		if d.EnrichmentChanged {
			a.cfg.Enrichment = d.NewEnrichment
		}
		a.buildPipeline(a.cfg.Analysis, a.cfg.Enrichment)
		slog.Info("pipeline rebuilt",
			"analysis_changed", d.AnalysisChanged,
			"enrichment_changed", d.EnrichmentChanged,
		)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
