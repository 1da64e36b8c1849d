// Package enrich generates Spanish species descriptions for analysis
// reports using a configurable LLM backend.
//
// Enrichment is strictly best-effort: a provider failure leaves the affected
// mention without a description and the report otherwise intact. The only
// error an [Enricher] returns is context cancellation.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/anavidal/bentos/internal/observe"
	"github.com/anavidal/bentos/pkg/provider/llm"
	"github.com/anavidal/bentos/pkg/types"
)

const (
	// DefaultMaxTokens caps each description completion.
	DefaultMaxTokens = 4000

	// DefaultConcurrency bounds in-flight LLM requests per report.
	DefaultConcurrency = 4

	// defaultTemperature keeps descriptions factual but not robotic.
	defaultTemperature = 0.7
)

// systemPrompt frames every description request. Responses must be plain
// Spanish prose so they can be embedded in reports verbatim.
const systemPrompt = "Eres un biólogo marino experto en la fauna del Atlántico " +
	"sudoccidental. Describe la especie indicada en español, en dos o tres " +
	"oraciones: qué es, su ecología y cualquier dato relevante para una " +
	"expedición de aguas profundas. Responde solo con el texto de la " +
	"descripción, sin formato ni encabezados."

// Enricher fills mention descriptions on a report by asking an LLM about
// each species. Safe for concurrent use.
type Enricher struct {
	provider    llm.Provider
	metrics     *observe.Metrics
	maxTokens   int
	concurrency int
	progress    func(types.ProgressEvent)
}

// Option configures an [Enricher].
type Option func(*Enricher)

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Enricher) { e.metrics = m }
}

// WithMaxTokens caps each completion. Defaults to [DefaultMaxTokens].
func WithMaxTokens(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithConcurrency bounds in-flight provider requests. Defaults to
// [DefaultConcurrency].
func WithConcurrency(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithProgress registers a callback invoked once per enriched report. The
// callback runs synchronously and must be fast.
func WithProgress(fn func(types.ProgressEvent)) Option {
	return func(e *Enricher) { e.progress = fn }
}

// New returns an Enricher backed by the given provider.
func New(provider llm.Provider, opts ...Option) *Enricher {
	e := &Enricher{
		provider:    provider,
		maxTokens:   DefaultMaxTokens,
		concurrency: DefaultConcurrency,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// EnrichReport describes every species in the report in place and rebuilds
// the taxonomy view. Mentions whose description request fails are left
// untouched and logged. Returns the number of mentions enriched; the error
// is non-nil only when ctx is cancelled.
func (e *Enricher) EnrichReport(ctx context.Context, r *types.Report) (int, error) {
	ctx, span := observe.StartSpan(ctx, "enrich.report",
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	start := time.Now()
	log := observe.Logger(ctx)

	var enriched atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range r.Species {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			desc, err := e.Describe(gctx, r.Species[i])
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("species enrichment failed",
					slog.String("species", r.Species[i].CommonName),
					slog.Any("error", err),
				)
				return nil
			}
			r.Species[i].Description = desc
			enriched.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(enriched.Load()), err
	}

	propagateDescriptions(r)
	r.RebuildTaxonomy()

	log.Info("report enriched",
		slog.Int("species", len(r.Species)),
		slog.Int64("enriched", enriched.Load()),
		slog.String("provider", e.provider.Name()),
		slog.Duration("elapsed", time.Since(start)),
	)
	e.emit("enrich", "species descriptions generated", int(enriched.Load()))
	return int(enriched.Load()), nil
}

// Describe asks the provider for a description of one mention.
func (e *Enricher) Describe(ctx context.Context, m types.Mention) (string, error) {
	start := time.Now()
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: buildPrompt(m)},
		},
		Temperature: defaultTemperature,
		MaxTokens:   e.maxTokens,
	})
	e.metrics.EnrichmentDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		e.metrics.RecordProviderError(ctx, e.provider.Name(), "llm")
		return "", fmt.Errorf("enrich: describe %q: %w", m.CommonName, err)
	}
	e.metrics.RecordProviderRequest(ctx, e.provider.Name(), "llm", "ok")
	return strings.TrimSpace(resp.Content), nil
}

// buildPrompt renders one mention into the user prompt. Only fields actually
// observed during the expedition are included, so the model grounds its
// answer in the sighting instead of inventing one.
func buildPrompt(m types.Mention) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Especie avistada: %s\n", m.CommonName)
	if m.ScientificName != "" {
		fmt.Fprintf(&b, "Nombre científico: %s\n", m.ScientificName)
	}
	if m.Phylum != "" && m.Phylum != "Desconocido" {
		fmt.Fprintf(&b, "Filo: %s\n", m.Phylum)
	}
	if m.Class != "" && m.Class != "Desconocida" {
		fmt.Fprintf(&b, "Clase: %s\n", m.Class)
	}
	if m.Context != "" {
		fmt.Fprintf(&b, "Contexto del avistamiento: %s\n", m.Context)
	}
	if m.AdditionalInfo != "" {
		fmt.Fprintf(&b, "Observaciones: %s\n", m.AdditionalInfo)
	}
	return b.String()
}

// propagateDescriptions copies descriptions from the species list onto the
// matching entries of the unknown-species review list, which holds separate
// copies of the same mentions.
func propagateDescriptions(r *types.Report) {
	byKey := make(map[string]string, len(r.Species))
	for _, m := range r.Species {
		if m.Description != "" {
			byKey[m.CommonName+"\x00"+m.Timestamp] = m.Description
		}
	}
	for i := range r.Unknown {
		if desc, ok := byKey[r.Unknown[i].CommonName+"\x00"+r.Unknown[i].Timestamp]; ok {
			r.Unknown[i].Description = desc
		}
	}
}

func (e *Enricher) emit(stage, message string, count int) {
	if e.progress == nil {
		return
	}
	e.progress(types.ProgressEvent{
		Stage:   stage,
		Message: message,
		Count:   count,
		At:      time.Now(),
	})
}
