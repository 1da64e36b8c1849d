// Package analyze implements the species-mention extraction pipeline: four
// independent scanning strategies over a subtitle transcript, temporal
// deduplication, confidence filtering, and report aggregation.
//
// Each strategy is an implementation of [Strategy] and can be tested in
// isolation. The [Extractor] composes a fixed ordered list of strategies and
// merges their output in that order, so running the strategies concurrently
// (see [WithParallel]) produces byte-identical results to a sequential run.
//
// A single text span may legitimately be emitted by several strategies —
// overlap resolution is the deduplicator's job, not the extractor's.
package analyze

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/anavidal/bentos/internal/species"
	"github.com/anavidal/bentos/internal/subtitle"
	"github.com/anavidal/bentos/pkg/types"
)

// Default tuning parameters. The two context windows are deliberately
// independent: merging them would silently change which determiner-context
// candidates pass the science gate.
const (
	// DefaultContextWindow is the half-width in bytes of the cleaned
	// context snippet attached to every mention.
	DefaultContextWindow = 150

	// DefaultScienceWindow is the half-width in bytes of the window the
	// determiner-context strategy searches for scientific indicators.
	DefaultScienceWindow = 200
)

// Strategy confidence scores. Assigned at mention creation and never
// recomputed; a binomial match always outranks a known pattern, which
// always outranks a determiner-context match.
const (
	confidenceBinomial     = 0.95
	confidenceGenusSp      = 0.90
	confidenceKnownPattern = 0.90
	confidenceMarineCtx    = 0.80
	confidenceDeterminer   = 0.70
)

// Strategy is one independent scanning pass over the transcript. Scan
// returns zero or more mentions in left-to-right match order; it must not
// retain doc and must be safe to call concurrently with other strategies
// scanning the same document.
type Strategy interface {
	// Name identifies the strategy in logs and metrics.
	Name() string

	// Scan emits the raw candidate mentions this strategy finds in doc.
	Scan(doc *subtitle.Document) []types.Mention
}

// Extractor runs a fixed ordered list of strategies over a document.
type Extractor struct {
	strategies []Strategy
	parallel   bool
}

// ExtractorOption configures an [Extractor].
type ExtractorOption func(*Extractor)

// WithParallel runs the strategies concurrently. Strategies only read the
// shared document and write to disjoint output slices, so no locking is
// needed; results are merged in strategy order either way.
func WithParallel(parallel bool) ExtractorOption {
	return func(e *Extractor) { e.parallel = parallel }
}

// WithStrategies replaces the default strategy list. Intended for tests.
func WithStrategies(strategies ...Strategy) ExtractorOption {
	return func(e *Extractor) { e.strategies = strategies }
}

// NewExtractor returns an Extractor with the four standard strategies in
// their fixed order: known patterns, scientific binomials, marine-keyword
// context, determiner context.
func NewExtractor(contextWindow, scienceWindow int, opts ...ExtractorOption) *Extractor {
	if contextWindow <= 0 {
		contextWindow = DefaultContextWindow
	}
	if scienceWindow <= 0 {
		scienceWindow = DefaultScienceWindow
	}
	b := &builder{contextWindow: contextWindow}
	e := &Extractor{
		strategies: []Strategy{
			&knownPatternStrategy{b: b},
			&scientificNameStrategy{b: b},
			&marineContextStrategy{b: b},
			&determinerContextStrategy{b: b, scienceWindow: scienceWindow},
		},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Strategies returns the configured strategy list in execution order.
func (e *Extractor) Strategies() []Strategy { return e.strategies }

// Extract runs every strategy over doc and returns the merged candidate
// list in strategy order. With [WithParallel] the strategies run on
// separate goroutines; the merge order is unchanged.
func (e *Extractor) Extract(ctx context.Context, doc *subtitle.Document) ([]types.Mention, error) {
	perStrategy, err := e.ExtractPerStrategy(ctx, doc)
	if err != nil {
		return nil, err
	}
	var merged []types.Mention
	for _, r := range perStrategy {
		merged = append(merged, r...)
	}
	return merged, nil
}

// ExtractPerStrategy is [Extractor.Extract] without the merge: result i
// holds the mentions of strategy i. The pipeline uses it to attribute
// per-strategy metrics.
func (e *Extractor) ExtractPerStrategy(ctx context.Context, doc *subtitle.Document) ([][]types.Mention, error) {
	results := make([][]types.Mention, len(e.strategies))

	if e.parallel {
		g, _ := errgroup.WithContext(ctx)
		for i, s := range e.strategies {
			g.Go(func() error {
				results[i] = s.Scan(doc)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, s := range e.strategies {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results[i] = s.Scan(doc)
		}
	}
	return results, nil
}

// builder assembles a mention from a raw match: canonical name, taxonomy
// lookups, nearest timestamp, cleaned context, and additional info. Shared
// read-only by all strategies.
type builder struct {
	contextWindow int
}

// mention builds the common fields every strategy fills in the same way.
// Strategies overwrite method-specific fields (scientific name, confidence)
// afterwards.
func (b *builder) mention(doc *subtitle.Document, raw, phylum string, pos int) types.Mention {
	canonical := species.Normalize(raw)
	ctx := cleanContext(doc.Text(), pos, b.contextWindow)
	return types.Mention{
		CommonName:     canonical,
		OriginalName:   raw,
		ScientificName: species.LookupScientificName(canonical),
		Phylum:         phylum,
		Class:          species.LookupClass(canonical, phylum),
		Timestamp:      doc.NearestStart(pos),
		Context:        ctx,
		AdditionalInfo: additionalInfo(ctx),
	}
}
