package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/anavidal/bentos/internal/sightings"
	"github.com/anavidal/bentos/pkg/types"
)

// maxSpeciesResults caps the species list response size.
const maxSpeciesResults = 1000

// statsResponse is the /api/stats body. Field names are a frontend
// compatibility contract.
type statsResponse struct {
	TotalSpecies   int     `json:"total_species"`
	TotalPhyla     int     `json:"total_phyla"`
	UnknownSpecies int     `json:"unknown_species"`
	AvgConfidence  float64 `json:"avg_confidence"`
}

// currentReport returns the published report or replies 503 and false when
// no analysis has completed yet.
func (s *Server) currentReport(w http.ResponseWriter) (*types.Report, bool) {
	r := s.report.Load()
	if r == nil {
		http.Error(w, "no analysis results available", http.StatusServiceUnavailable)
		return nil, false
	}
	return r, true
}

// handleStats serves GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	report, ok := s.currentReport(w)
	if !ok {
		return
	}

	var confSum float64
	for _, m := range report.Species {
		confSum += m.Confidence
	}
	stats := statsResponse{
		TotalSpecies:   len(report.Species),
		TotalPhyla:     len(report.Taxonomy),
		UnknownSpecies: len(report.Unknown),
	}
	if stats.TotalSpecies > 0 {
		stats.AvgConfidence = confSum / float64(stats.TotalSpecies)
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleSpecies serves GET /api/species with optional filters: phylum,
// min_confidence (the legacy "confidence" name is also accepted), method,
// and search over common and scientific names.
func (s *Server) handleSpecies(w http.ResponseWriter, r *http.Request) {
	report, ok := s.currentReport(w)
	if !ok {
		return
	}
	q := r.URL.Query()

	minConfidence := 0.0
	if raw := firstNonEmpty(q.Get("min_confidence"), q.Get("confidence")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			http.Error(w, "invalid min_confidence", http.StatusBadRequest)
			return
		}
		minConfidence = v
	}
	phylum := q.Get("phylum")
	method := q.Get("method")
	search := strings.ToLower(q.Get("search"))

	idx := *s.thumbIndex.Load()
	out := []types.Mention{}
	for _, m := range report.Species {
		if phylum != "" && m.Phylum != phylum {
			continue
		}
		if m.Confidence < minConfidence {
			continue
		}
		if method != "" && m.Method.String() != method {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(m.CommonName), search) &&
			!strings.Contains(strings.ToLower(m.ScientificName), search) {
			continue
		}
		if name := idx.Lookup(m.Timestamp); name != "" {
			m.Thumbnail = path.Join("/api/thumbnail", name)
		}
		out = append(out, m)
		if len(out) == maxSpeciesResults {
			break
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePhyla serves GET /api/phyla: the phylum-grouped species view.
func (s *Server) handlePhyla(w http.ResponseWriter, _ *http.Request) {
	report, ok := s.currentReport(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report.Taxonomy)
}

// handleThumbnail serves GET /api/thumbnail/{name} from the thumbnail
// directory. The name is reduced to its base to keep requests inside the
// directory.
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(r.PathValue("name"))
	if name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, ".") {
		http.Error(w, "invalid thumbnail name", http.StatusBadRequest)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, filepath.Join(s.cfg.ThumbnailDir, name))
}

// runResponse is one entry of the /api/runs body.
type runResponse struct {
	ID           int64  `json:"id"`
	Expedition   string `json:"expedition"`
	AnalyzedAt   string `json:"analyzed_at"`
	TotalSpecies int    `json:"total_species"`
	PhylaCount   int    `json:"phyla_count"`
	UnknownCount int    `json:"unknown_count"`
}

func toRunResponse(r sightings.Run) runResponse {
	return runResponse{
		ID:           r.ID,
		Expedition:   r.Expedition,
		AnalyzedAt:   r.AnalyzedAt.UTC().Format(time.RFC3339),
		TotalSpecies: r.TotalSpecies,
		PhylaCount:   r.PhylaCount,
		UnknownCount: r.UnknownCount,
	}
}

// handleRuns serves GET /api/runs?limit=N from the sightings store.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = v
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	writeJSON(w, http.StatusOK, out)
}

// runDetailResponse is the /api/runs/{id} body.
type runDetailResponse struct {
	Run       runResponse     `json:"run"`
	Sightings []types.Mention `json:"sightings"`
}

// handleRun serves GET /api/runs/{id} with the run's sightings, honoring
// the same phylum and min_confidence filters as /api/species.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, sightings.ErrNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to load run", http.StatusInternalServerError)
		return
	}

	filter := sightings.Filter{Phylum: r.URL.Query().Get("phylum")}
	if raw := r.URL.Query().Get("min_confidence"); raw != "" {
		v, parseErr := strconv.ParseFloat(raw, 64)
		if parseErr != nil {
			http.Error(w, "invalid min_confidence", http.StatusBadRequest)
			return
		}
		filter.MinConfidence = v
	}

	list, err := s.store.ListSightings(r.Context(), id, filter)
	if err != nil {
		http.Error(w, "failed to list sightings", http.StatusInternalServerError)
		return
	}
	mentions := make([]types.Mention, 0, len(list))
	for _, st := range list {
		mentions = append(mentions, st.Mention)
	}
	writeJSON(w, http.StatusOK, runDetailResponse{Run: toRunResponse(*run), Sightings: mentions})
}

// similarResponse is one /api/similar result entry.
type similarResponse struct {
	RunID          int64   `json:"run_id"`
	CommonName     string  `json:"common_name"`
	ScientificName string  `json:"scientific_name,omitempty"`
	Phylum         string  `json:"phylum"`
	Timestamp      string  `json:"timestamp"`
	Context        string  `json:"context,omitempty"`
	Confidence     float64 `json:"confidence"`
	Distance       float64 `json:"distance"`
}

// defaultSimilarK bounds GET /api/similar results when no k is given.
const defaultSimilarK = 5

// handleSimilar serves GET /api/similar?q=...&k=N: semantic search over
// stored sighting contexts across all runs.
func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}
	topK := defaultSimilarK
	if raw := r.URL.Query().Get("k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			http.Error(w, "invalid k", http.StatusBadRequest)
			return
		}
		topK = v
	}

	list, err := s.similar(r.Context(), query, topK)
	if err != nil {
		http.Error(w, "similarity search failed", http.StatusInternalServerError)
		return
	}
	out := make([]similarResponse, 0, len(list))
	for _, sim := range list {
		out = append(out, similarResponse{
			RunID:          sim.RunID,
			CommonName:     sim.Mention.CommonName,
			ScientificName: sim.Mention.ScientificName,
			Phylum:         sim.Mention.Phylum,
			Timestamp:      sim.Mention.Timestamp,
			Context:        sim.Mention.Context,
			Confidence:     sim.Mention.Confidence,
			Distance:       sim.Distance,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// writeJSON encodes v with the charset the frontend expects.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
	}
}
