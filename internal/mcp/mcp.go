// Package mcp exposes saved analysis results to MCP clients.
//
// The server speaks the Model Context Protocol over stdio using the official
// Go SDK, so desktop AI assistants can query a finished biodiversity
// analysis: look up individual species sightings and fetch run-level
// statistics. All data comes from the sightings store; the server performs
// no analysis of its own.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anavidal/bentos/internal/observe"
	"github.com/anavidal/bentos/internal/sightings"
	"github.com/anavidal/bentos/internal/species"
)

// Server is an MCP server over a sightings store. Create with [New], then
// call [Server.Run] to serve on stdio.
type Server struct {
	store     sightings.Store
	metrics   *observe.Metrics
	suggester *species.Suggester
	mcp       *mcpsdk.Server
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates the MCP server and registers its tools.
func New(store sightings.Store, version string, opts ...Option) *Server {
	s := &Server{
		store:     store,
		suggester: species.NewSuggester(nil),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	s.mcp = mcpsdk.NewServer(
		&mcpsdk.Implementation{Name: "bentos", Version: version},
		nil,
	)
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name: "species_lookup",
		Description: "Look up a marine species by common or scientific name " +
			"in the saved sightings of an analysis run. Returns matching " +
			"sightings with taxonomy, timestamps, and confidence; when " +
			"nothing matches, suggests the closest known name.",
	}, s.speciesLookup)
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name: "analysis_stats",
		Description: "Summarise an analysis run: expedition, species and " +
			"phyla counts, unknown-species count, and the per-phylum " +
			"breakdown of sightings.",
	}, s.analysisStats)

	return s
}

// Run serves MCP over stdio until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	if err := s.mcp.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

// resolveRun loads the requested run, defaulting to the most recent one
// when runID is zero.
func (s *Server) resolveRun(ctx context.Context, runID int64) (*sightings.Run, error) {
	if runID == 0 {
		return s.store.LatestRun(ctx)
	}
	return s.store.GetRun(ctx, runID)
}

// speciesLookupArgs is the species_lookup input.
type speciesLookupArgs struct {
	// Name is the species name to search for, common or scientific.
	Name string `json:"name" jsonschema:"species name to search for"`

	// RunID selects a specific analysis run; 0 or omitted means the most
	// recent run.
	RunID int64 `json:"run_id,omitempty" jsonschema:"analysis run id, omit for the latest run"`
}

// sightingSummary is one species_lookup result entry.
type sightingSummary struct {
	CommonName     string  `json:"common_name"`
	ScientificName string  `json:"scientific_name,omitempty"`
	Phylum         string  `json:"phylum"`
	Class          string  `json:"class,omitempty"`
	Timestamp      string  `json:"timestamp"`
	Context        string  `json:"context,omitempty"`
	Confidence     float64 `json:"confidence"`
}

// speciesLookupResult is the species_lookup output.
type speciesLookupResult struct {
	RunID      int64             `json:"run_id"`
	Expedition string            `json:"expedition"`
	Query      string            `json:"query"`
	Matches    []sightingSummary `json:"matches"`

	// Suggestion is the closest known common name when no sighting matched.
	Suggestion string `json:"suggestion,omitempty"`
}

func (s *Server) speciesLookup(ctx context.Context, _ *mcpsdk.CallToolRequest, args speciesLookupArgs) (*mcpsdk.CallToolResult, any, error) {
	start := time.Now()
	defer func() {
		s.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds())
	}()

	if strings.TrimSpace(args.Name) == "" {
		s.metrics.RecordToolCall(ctx, "species_lookup", "error")
		return nil, nil, errors.New("mcp: species_lookup: name is required")
	}

	run, err := s.resolveRun(ctx, args.RunID)
	if err != nil {
		s.metrics.RecordToolCall(ctx, "species_lookup", "error")
		if errors.Is(err, sightings.ErrNotFound) {
			return nil, nil, errors.New("mcp: no analysis runs available")
		}
		return nil, nil, fmt.Errorf("mcp: species_lookup: %w", err)
	}

	list, err := s.store.ListSightings(ctx, run.ID, sightings.Filter{})
	if err != nil {
		s.metrics.RecordToolCall(ctx, "species_lookup", "error")
		return nil, nil, fmt.Errorf("mcp: species_lookup: %w", err)
	}

	query := species.Normalize(args.Name)
	result := speciesLookupResult{
		RunID:      run.ID,
		Expedition: run.Expedition,
		Query:      args.Name,
		Matches:    []sightingSummary{},
	}
	for _, st := range list {
		m := st.Mention
		if !strings.Contains(species.Normalize(m.CommonName), query) &&
			!strings.Contains(strings.ToLower(m.ScientificName), strings.ToLower(args.Name)) {
			continue
		}
		result.Matches = append(result.Matches, sightingSummary{
			CommonName:     m.CommonName,
			ScientificName: m.ScientificName,
			Phylum:         m.Phylum,
			Class:          m.Class,
			Timestamp:      m.Timestamp,
			Context:        m.Context,
			Confidence:     m.Confidence,
		})
	}
	if len(result.Matches) == 0 {
		if suggestion, _, ok := s.suggester.Suggest(query); ok {
			result.Suggestion = suggestion
		}
	}

	s.metrics.RecordToolCall(ctx, "species_lookup", "ok")
	return textResult(result)
}

// analysisStatsArgs is the analysis_stats input.
type analysisStatsArgs struct {
	// RunID selects a specific analysis run; 0 or omitted means the most
	// recent run.
	RunID int64 `json:"run_id,omitempty" jsonschema:"analysis run id, omit for the latest run"`
}

// analysisStatsResult is the analysis_stats output.
type analysisStatsResult struct {
	RunID        int64          `json:"run_id"`
	Expedition   string         `json:"expedition"`
	AnalyzedAt   string         `json:"analyzed_at"`
	TotalSpecies int            `json:"total_species"`
	PhylaCount   int            `json:"phyla_count"`
	UnknownCount int            `json:"unknown_count"`
	ByPhylum     map[string]int `json:"by_phylum"`
}

func (s *Server) analysisStats(ctx context.Context, _ *mcpsdk.CallToolRequest, args analysisStatsArgs) (*mcpsdk.CallToolResult, any, error) {
	start := time.Now()
	defer func() {
		s.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds())
	}()

	run, err := s.resolveRun(ctx, args.RunID)
	if err != nil {
		s.metrics.RecordToolCall(ctx, "analysis_stats", "error")
		if errors.Is(err, sightings.ErrNotFound) {
			return nil, nil, errors.New("mcp: no analysis runs available")
		}
		return nil, nil, fmt.Errorf("mcp: analysis_stats: %w", err)
	}

	list, err := s.store.ListSightings(ctx, run.ID, sightings.Filter{})
	if err != nil {
		s.metrics.RecordToolCall(ctx, "analysis_stats", "error")
		return nil, nil, fmt.Errorf("mcp: analysis_stats: %w", err)
	}

	byPhylum := make(map[string]int)
	for _, st := range list {
		byPhylum[st.Mention.Phylum]++
	}

	s.metrics.RecordToolCall(ctx, "analysis_stats", "ok")
	return textResult(analysisStatsResult{
		RunID:        run.ID,
		Expedition:   run.Expedition,
		AnalyzedAt:   run.AnalyzedAt.UTC().Format(time.RFC3339),
		TotalSpecies: run.TotalSpecies,
		PhylaCount:   run.PhylaCount,
		UnknownCount: run.UnknownCount,
		ByPhylum:     byPhylum,
	})
}

// textResult marshals v and wraps it in a single text content block.
func textResult(v any) (*mcpsdk.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("mcp: encode result: %w", err)
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, nil, nil
}
