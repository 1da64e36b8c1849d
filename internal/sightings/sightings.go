// Package sightings defines persistence for analysis runs and the species
// sightings they produced.
//
// A Run is one completed analysis of an expedition transcript; its Sightings
// are the deduplicated, confidence-filtered mentions from the report. Stores
// may additionally hold a context embedding per sighting, enabling
// "find similar sightings" queries across runs.
package sightings

import (
	"context"
	"errors"
	"time"

	"github.com/anavidal/bentos/pkg/types"
)

// ErrNotFound is returned when the requested run or sighting does not exist.
var ErrNotFound = errors.New("sightings: not found")

// Run is one persisted analysis of a transcript.
type Run struct {
	ID           int64
	Expedition   string
	AnalyzedAt   time.Time
	TotalSpecies int
	PhylaCount   int
	UnknownCount int
}

// Sighting is one deduplicated species mention within a run.
type Sighting struct {
	ID      int64
	RunID   int64
	Mention types.Mention
}

// Filter narrows ListSightings results. Zero values mean no constraint.
type Filter struct {
	// Phylum restricts results to an exact phylum name.
	Phylum string

	// MinConfidence drops sightings below the given confidence.
	MinConfidence float64
}

// SimilarSighting pairs a sighting with its cosine distance to a query
// embedding. Smaller distance means more similar.
type SimilarSighting struct {
	Sighting
	Distance float64
}

// Store persists analysis runs and their sightings.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveRun persists a run and the report's species list atomically. It
	// returns the stored run (with ID and AnalyzedAt set) and the stored
	// sightings in report order.
	SaveRun(ctx context.Context, expedition string, analyzedAt time.Time, report *types.Report) (*Run, []Sighting, error)

	// GetRun returns the run with the given ID, or ErrNotFound.
	GetRun(ctx context.Context, id int64) (*Run, error)

	// LatestRun returns the most recently analyzed run, or ErrNotFound when
	// no run has been saved yet.
	LatestRun(ctx context.Context) (*Run, error)

	// ListRuns returns up to limit runs, newest first. limit <= 0 means no
	// limit.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// ListSightings returns the sightings of a run matching f, in insertion
	// order.
	ListSightings(ctx context.Context, runID int64, f Filter) ([]Sighting, error)

	// SetEmbedding attaches a context embedding to a sighting, replacing any
	// previous one. Returns ErrNotFound for an unknown sighting ID.
	SetEmbedding(ctx context.Context, sightingID int64, embedding []float32) error

	// SearchSimilar returns up to topK sightings whose context embeddings
	// are closest to embedding, most similar first. Sightings without an
	// embedding are skipped.
	SearchSimilar(ctx context.Context, embedding []float32, topK int) ([]SimilarSighting, error)
}
