package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/anavidal/bentos/internal/sightings"
	"github.com/anavidal/bentos/pkg/types"
)

// Compile-time interface check.
var _ sightings.Store = (*Store)(nil)

// Store is the PostgreSQL-backed sightings store. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection,
// and runs [Migrate] to ensure all required tables and extensions exist.
//
// embeddingDimensions must match the output dimension of the embedding model
// used to produce sighting context embeddings (e.g., 1536 for OpenAI
// text-embedding-3-small). Changing this value after the first migration
// requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("sightings store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sightings store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sightings store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sightings store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping verifies the database connection. Suitable as a readiness checker.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveRun implements [sightings.Store]. The run row and every sighting row
// are written in one transaction; a failure leaves the database unchanged.
func (s *Store) SaveRun(ctx context.Context, expedition string, analyzedAt time.Time, report *types.Report) (*sightings.Run, []sightings.Sighting, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("sightings store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	run := &sightings.Run{
		Expedition:   expedition,
		AnalyzedAt:   analyzedAt,
		TotalSpecies: report.Metadata.TotalSpecies,
		PhylaCount:   report.Metadata.PhylaCount,
		UnknownCount: report.Metadata.UnknownSpeciesCount,
	}

	const insertRun = `
		INSERT INTO analysis_runs
		    (expedition, analyzed_at, total_species, phyla_count, unknown_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := tx.QueryRow(ctx, insertRun,
		run.Expedition, run.AnalyzedAt, run.TotalSpecies, run.PhylaCount, run.UnknownCount,
	).Scan(&run.ID); err != nil {
		return nil, nil, fmt.Errorf("sightings store: insert run: %w", err)
	}

	const insertSighting = `
		INSERT INTO sightings
		    (run_id, common_name, original_name, scientific_name, phylum, class,
		     sighted_at, context, additional_info, detection_method, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	stored := make([]sightings.Sighting, 0, len(report.Species))
	for _, m := range report.Species {
		st := sightings.Sighting{RunID: run.ID, Mention: m}
		if err := tx.QueryRow(ctx, insertSighting,
			run.ID,
			m.CommonName,
			m.OriginalName,
			m.ScientificName,
			m.Phylum,
			m.Class,
			m.Timestamp,
			m.Context,
			m.AdditionalInfo,
			m.Method.String(),
			m.Confidence,
		).Scan(&st.ID); err != nil {
			return nil, nil, fmt.Errorf("sightings store: insert sighting %q: %w", m.CommonName, err)
		}
		stored = append(stored, st)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("sightings store: commit: %w", err)
	}
	return run, stored, nil
}

// GetRun implements [sightings.Store].
func (s *Store) GetRun(ctx context.Context, id int64) (*sightings.Run, error) {
	const q = `
		SELECT id, expedition, analyzed_at, total_species, phyla_count, unknown_count
		FROM   analysis_runs
		WHERE  id = $1`
	return s.scanRun(s.pool.QueryRow(ctx, q, id))
}

// LatestRun implements [sightings.Store].
func (s *Store) LatestRun(ctx context.Context) (*sightings.Run, error) {
	const q = `
		SELECT id, expedition, analyzed_at, total_species, phyla_count, unknown_count
		FROM   analysis_runs
		ORDER  BY analyzed_at DESC, id DESC
		LIMIT  1`
	return s.scanRun(s.pool.QueryRow(ctx, q))
}

func (s *Store) scanRun(row pgx.Row) (*sightings.Run, error) {
	var r sightings.Run
	err := row.Scan(&r.ID, &r.Expedition, &r.AnalyzedAt, &r.TotalSpecies, &r.PhylaCount, &r.UnknownCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sightings.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sightings store: scan run: %w", err)
	}
	return &r, nil
}

// ListRuns implements [sightings.Store].
func (s *Store) ListRuns(ctx context.Context, limit int) ([]sightings.Run, error) {
	q := `
		SELECT id, expedition, analyzed_at, total_species, phyla_count, unknown_count
		FROM   analysis_runs
		ORDER  BY analyzed_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sightings store: list runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (sightings.Run, error) {
		var r sightings.Run
		err := row.Scan(&r.ID, &r.Expedition, &r.AnalyzedAt, &r.TotalSpecies, &r.PhylaCount, &r.UnknownCount)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("sightings store: scan runs: %w", err)
	}
	if runs == nil {
		runs = []sightings.Run{}
	}
	return runs, nil
}

// ListSightings implements [sightings.Store].
func (s *Store) ListSightings(ctx context.Context, runID int64, f sightings.Filter) ([]sightings.Sighting, error) {
	args := []any{runID} // $1 = run_id
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"run_id = $1"}
	if f.Phylum != "" {
		conditions = append(conditions, "phylum = "+next(f.Phylum))
	}
	if f.MinConfidence > 0 {
		conditions = append(conditions, "confidence >= "+next(f.MinConfidence))
	}

	q := "SELECT " + sightingColumns + "\n" +
		"FROM   sightings\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY id"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sightings store: list sightings: %w", err)
	}
	return collectSightings(rows)
}

// SetEmbedding implements [sightings.Store].
func (s *Store) SetEmbedding(ctx context.Context, sightingID int64, embedding []float32) error {
	const q = `UPDATE sightings SET embedding = $1 WHERE id = $2`
	tag, err := s.pool.Exec(ctx, q, pgvector.NewVector(embedding), sightingID)
	if err != nil {
		return fmt.Errorf("sightings store: set embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sightings.ErrNotFound
	}
	return nil
}

// SearchSimilar implements [sightings.Store]. Results are ordered by
// ascending cosine distance (most similar first).
func (s *Store) SearchSimilar(ctx context.Context, embedding []float32, topK int) ([]sightings.SimilarSighting, error) {
	q := "SELECT " + sightingColumns + ", embedding <=> $1 AS distance\n" +
		"FROM   sightings\n" +
		"WHERE  embedding IS NOT NULL\n" +
		"ORDER  BY distance\n" +
		"LIMIT  $2"

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("sightings store: search similar: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (sightings.SimilarSighting, error) {
		var (
			sim    sightings.SimilarSighting
			method string
		)
		if err := row.Scan(
			&sim.ID,
			&sim.RunID,
			&sim.Mention.CommonName,
			&sim.Mention.OriginalName,
			&sim.Mention.ScientificName,
			&sim.Mention.Phylum,
			&sim.Mention.Class,
			&sim.Mention.Timestamp,
			&sim.Mention.Context,
			&sim.Mention.AdditionalInfo,
			&method,
			&sim.Mention.Confidence,
			&sim.Distance,
		); err != nil {
			return sightings.SimilarSighting{}, err
		}
		m, err := types.ParseDetectionMethod(method)
		if err != nil {
			return sightings.SimilarSighting{}, err
		}
		sim.Mention.Method = m
		return sim, nil
	})
	if err != nil {
		return nil, fmt.Errorf("sightings store: scan similar: %w", err)
	}
	if results == nil {
		results = []sightings.SimilarSighting{}
	}
	return results, nil
}

// sightingColumns is the shared column list for sighting SELECTs, in the
// order collectSightings scans them.
const sightingColumns = `id, run_id, common_name, original_name, scientific_name, phylum, class,
       sighted_at, context, additional_info, detection_method, confidence`

// collectSightings scans pgx rows into a slice of Sighting values.
func collectSightings(rows pgx.Rows) ([]sightings.Sighting, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (sightings.Sighting, error) {
		var (
			st     sightings.Sighting
			method string
		)
		if err := row.Scan(
			&st.ID,
			&st.RunID,
			&st.Mention.CommonName,
			&st.Mention.OriginalName,
			&st.Mention.ScientificName,
			&st.Mention.Phylum,
			&st.Mention.Class,
			&st.Mention.Timestamp,
			&st.Mention.Context,
			&st.Mention.AdditionalInfo,
			&method,
			&st.Mention.Confidence,
		); err != nil {
			return sightings.Sighting{}, err
		}
		m, err := types.ParseDetectionMethod(method)
		if err != nil {
			return sightings.Sighting{}, err
		}
		st.Mention.Method = m
		return st, nil
	})
	if err != nil {
		return nil, fmt.Errorf("sightings store: scan rows: %w", err)
	}
	if out == nil {
		out = []sightings.Sighting{}
	}
	return out, nil
}
