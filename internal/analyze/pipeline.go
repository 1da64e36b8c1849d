package analyze

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/anavidal/bentos/internal/observe"
	"github.com/anavidal/bentos/internal/species"
	"github.com/anavidal/bentos/internal/subtitle"
	"github.com/anavidal/bentos/pkg/types"
)

// Confidence thresholds.
const (
	// DefaultMinConfidence is the floor below which deduplicated mentions
	// are dropped from the result.
	DefaultMinConfidence = 0.6

	// DefaultReviewThreshold is the confidence an unknown-phylum mention
	// must exceed to appear on the possibly-new-species review list.
	DefaultReviewThreshold = 0.7
)

// Config tunes an [Analyzer]. The zero value selects all defaults.
type Config struct {
	// MinConfidence drops mentions scoring below it. Default 0.6.
	MinConfidence float64

	// ReviewThreshold gates the unknown-species review list. Default 0.7.
	ReviewThreshold float64

	// DedupWindow is the temporal proximity for duplicate collapsing.
	// Default 5 minutes.
	DedupWindow time.Duration

	// ContextWindow is the half-width in bytes of mention context snippets.
	ContextWindow int

	// ScienceWindow is the half-width in bytes of the determiner-context
	// science gate.
	ScienceWindow int

	// Parallel runs the extraction strategies concurrently.
	Parallel bool
}

// Analyzer is the full extraction pipeline: strategies, deduplication,
// confidence filtering, and unknown-species review. Analyzers hold no
// per-run state and are safe for concurrent use.
type Analyzer struct {
	cfg       Config
	extractor *Extractor
	suggester *species.Suggester
	metrics   *observe.Metrics
	progress  func(types.ProgressEvent)
}

// Option configures an [Analyzer].
type Option func(*Analyzer)

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithSuggester sets the fuzzy suggester used to annotate unknown-phylum
// mentions. Defaults to a suggester over the built-in lexicon.
func WithSuggester(s *species.Suggester) Option {
	return func(a *Analyzer) { a.suggester = s }
}

// WithProgress registers a callback invoked after each pipeline stage. The
// callback runs synchronously on the analysis goroutine and must be fast.
func WithProgress(fn func(types.ProgressEvent)) Option {
	return func(a *Analyzer) { a.progress = fn }
}

// New returns an Analyzer with the given config.
func New(cfg Config, opts ...Option) *Analyzer {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.ReviewThreshold <= 0 {
		cfg.ReviewThreshold = DefaultReviewThreshold
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	a := &Analyzer{
		cfg: cfg,
		extractor: NewExtractor(cfg.ContextWindow, cfg.ScienceWindow,
			WithParallel(cfg.Parallel)),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.suggester == nil {
		a.suggester = species.NewSuggester(nil)
	}
	return a
}

// Stats summarises one pipeline run.
type Stats struct {
	// Extracted is the raw candidate count before deduplication.
	Extracted int `json:"extracted"`

	// DedupDropped is the number of mentions collapsed as duplicates.
	DedupDropped int `json:"dedup_dropped"`

	// FilteredOut is the number of deduplicated mentions below the
	// confidence floor.
	FilteredOut int `json:"filtered_out"`

	// Methods tallies the surviving mentions per detection method.
	Methods types.MethodCounts `json:"methods"`

	// MeanConfidence is the average confidence of surviving mentions, 0
	// when none survive.
	MeanConfidence float64 `json:"mean_confidence"`
}

// Result is the output of one pipeline run. Candidates and Unknown are
// disjoint views: Unknown members also appear in Candidates.
type Result struct {
	// Candidates is the deduplicated, confidence-filtered mention list in
	// deterministic pipeline order.
	Candidates []types.Mention

	// Unknown lists the unknown-phylum candidates above the review
	// threshold, each annotated with a fuzzy suggestion when one exists.
	Unknown []types.Mention

	// Stats summarises the run.
	Stats Stats
}

// Analyze runs the full pipeline over a transcript and returns the result.
// The only error paths are context cancellation; an empty transcript yields
// an empty result, not an error.
func (a *Analyzer) Analyze(ctx context.Context, transcript string) (*Result, error) {
	ctx, span := observe.StartSpan(ctx, "analyze.pipeline",
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	a.metrics.ActiveAnalyses.Add(ctx, 1)
	defer a.metrics.ActiveAnalyses.Add(ctx, -1)

	start := time.Now()
	log := observe.Logger(ctx)

	doc := subtitle.NewDocument(transcript)
	log.Info("analysis started",
		slog.Int("transcript_bytes", len(transcript)),
		slog.Int("markers", len(doc.Markers())),
	)

	perStrategy, err := a.extractor.ExtractPerStrategy(ctx, doc)
	if err != nil {
		return nil, err
	}
	var raw []types.Mention
	for i, mentions := range perStrategy {
		a.metrics.RecordMentions(ctx, a.extractor.Strategies()[i].Name(), len(mentions))
		raw = append(raw, mentions...)
	}
	a.emit("extract", "candidate mentions extracted", len(raw))

	unique := Deduplicate(raw, a.cfg.DedupWindow)
	dropped := len(raw) - len(unique)
	a.metrics.DedupDropped.Add(ctx, int64(dropped))
	a.emit("dedup", "duplicates collapsed", len(unique))

	kept := unique[:0:0]
	for _, m := range unique {
		if m.Confidence >= a.cfg.MinConfidence {
			kept = append(kept, m)
		}
	}
	a.emit("filter", "low-confidence mentions dropped", len(kept))

	unknown := a.reviewUnknown(kept)

	stats := Stats{
		Extracted:    len(raw),
		DedupDropped: dropped,
		FilteredOut:  len(unique) - len(kept),
	}
	var confSum float64
	for _, m := range kept {
		stats.Methods.Add(m.Method)
		confSum += m.Confidence
	}
	if len(kept) > 0 {
		stats.MeanConfidence = confSum / float64(len(kept))
	}

	a.metrics.ExtractionDuration.Record(ctx, time.Since(start).Seconds())
	log.Info("analysis completed",
		slog.Int("extracted", stats.Extracted),
		slog.Int("kept", len(kept)),
		slog.Int("unknown", len(unknown)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return &Result{Candidates: kept, Unknown: unknown, Stats: stats}, nil
}

// reviewUnknown collects unknown-phylum mentions above the review threshold
// and annotates each with the closest known name, so a reviewer can tell a
// misheard "pulppo" from a genuinely novel sighting.
func (a *Analyzer) reviewUnknown(kept []types.Mention) []types.Mention {
	var unknown []types.Mention
	for _, m := range kept {
		if m.Phylum != species.UnknownPhylum || m.Confidence <= a.cfg.ReviewThreshold {
			continue
		}
		if suggestion, _, ok := a.suggester.Suggest(m.CommonName); ok {
			m.Suggestion = suggestion
		}
		unknown = append(unknown, m)
	}
	return unknown
}

func (a *Analyzer) emit(stage, message string, count int) {
	if a.progress == nil {
		return
	}
	a.progress(types.ProgressEvent{
		Stage:   stage,
		Message: message,
		Count:   count,
		At:      time.Now(),
	})
}
