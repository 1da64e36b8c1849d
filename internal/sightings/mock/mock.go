// Package mock provides an in-memory sightings.Store for tests and for
// running the server without PostgreSQL.
package mock

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/anavidal/bentos/internal/sightings"
	"github.com/anavidal/bentos/pkg/types"
)

// Compile-time interface check.
var _ sightings.Store = (*Store)(nil)

// Store is an in-memory implementation of sightings.Store. The zero value is
// ready to use. Safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	runs       []sightings.Run
	sights     []sightings.Sighting
	embeddings map[int64][]float32
	nextRunID  int64
	nextID     int64
}

// SaveRun implements sightings.Store.
func (s *Store) SaveRun(_ context.Context, expedition string, analyzedAt time.Time, report *types.Report) (*sightings.Run, []sightings.Sighting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRunID++
	run := sightings.Run{
		ID:           s.nextRunID,
		Expedition:   expedition,
		AnalyzedAt:   analyzedAt,
		TotalSpecies: report.Metadata.TotalSpecies,
		PhylaCount:   report.Metadata.PhylaCount,
		UnknownCount: report.Metadata.UnknownSpeciesCount,
	}
	s.runs = append(s.runs, run)

	stored := make([]sightings.Sighting, 0, len(report.Species))
	for _, m := range report.Species {
		s.nextID++
		st := sightings.Sighting{ID: s.nextID, RunID: run.ID, Mention: m}
		s.sights = append(s.sights, st)
		stored = append(stored, st)
	}
	return &run, stored, nil
}

// GetRun implements sightings.Store.
func (s *Store) GetRun(_ context.Context, id int64) (*sightings.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.ID == id {
			out := r
			return &out, nil
		}
	}
	return nil, sightings.ErrNotFound
}

// LatestRun implements sightings.Store.
func (s *Store) LatestRun(_ context.Context) (*sightings.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return nil, sightings.ErrNotFound
	}
	latest := s.runs[0]
	for _, r := range s.runs[1:] {
		if r.AnalyzedAt.After(latest.AnalyzedAt) || (r.AnalyzedAt.Equal(latest.AnalyzedAt) && r.ID > latest.ID) {
			latest = r
		}
	}
	out := latest
	return &out, nil
}

// ListRuns implements sightings.Store.
func (s *Store) ListRuns(_ context.Context, limit int) ([]sightings.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := make([]sightings.Run, len(s.runs))
	copy(runs, s.runs)
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].AnalyzedAt.Equal(runs[j].AnalyzedAt) {
			return runs[i].AnalyzedAt.After(runs[j].AnalyzedAt)
		}
		return runs[i].ID > runs[j].ID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// ListSightings implements sightings.Store.
func (s *Store) ListSightings(_ context.Context, runID int64, f sightings.Filter) ([]sightings.Sighting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []sightings.Sighting{}
	for _, st := range s.sights {
		if st.RunID != runID {
			continue
		}
		if f.Phylum != "" && st.Mention.Phylum != f.Phylum {
			continue
		}
		if f.MinConfidence > 0 && st.Mention.Confidence < f.MinConfidence {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

// SetEmbedding implements sightings.Store.
func (s *Store) SetEmbedding(_ context.Context, sightingID int64, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, st := range s.sights {
		if st.ID == sightingID {
			found = true
			break
		}
	}
	if !found {
		return sightings.ErrNotFound
	}
	if s.embeddings == nil {
		s.embeddings = make(map[int64][]float32)
	}
	cp := make([]float32, len(embedding))
	copy(cp, embedding)
	s.embeddings[sightingID] = cp
	return nil
}

// SearchSimilar implements sightings.Store using exact cosine distance.
func (s *Store) SearchSimilar(_ context.Context, embedding []float32, topK int) ([]sightings.SimilarSighting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []sightings.SimilarSighting{}
	for _, st := range s.sights {
		vec, ok := s.embeddings[st.ID]
		if !ok {
			continue
		}
		out = append(out, sightings.SimilarSighting{
			Sighting: st,
			Distance: cosineDistance(embedding, vec),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// cosineDistance returns 1 - cosine similarity, matching pgvector's <=>
// operator. Zero vectors yield the maximum distance 1.
func cosineDistance(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := range n {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
