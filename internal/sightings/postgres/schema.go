// Package postgres provides the PostgreSQL-backed sightings store.
//
// Runs and sightings share a single [pgxpool.Pool]. The pgvector extension
// must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
//
//	run, stored, err := store.SaveRun(ctx, "Cañón de Mar del Plata", time.Now(), report)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlAnalysisRuns = `
CREATE TABLE IF NOT EXISTS analysis_runs (
    id             BIGSERIAL    PRIMARY KEY,
    expedition     TEXT         NOT NULL,
    analyzed_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    total_species  INT          NOT NULL DEFAULT 0,
    phyla_count    INT          NOT NULL DEFAULT 0,
    unknown_count  INT          NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_analyzed_at
    ON analysis_runs (analyzed_at);
`

// ddlSightings returns the sightings DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlSightings(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS sightings (
    id               BIGSERIAL        PRIMARY KEY,
    run_id           BIGINT           NOT NULL REFERENCES analysis_runs (id) ON DELETE CASCADE,
    common_name      TEXT             NOT NULL,
    original_name    TEXT             NOT NULL DEFAULT '',
    scientific_name  TEXT             NOT NULL DEFAULT '',
    phylum           TEXT             NOT NULL DEFAULT '',
    class            TEXT             NOT NULL DEFAULT '',
    sighted_at       TEXT             NOT NULL DEFAULT '00:00:00.000',
    context          TEXT             NOT NULL DEFAULT '',
    additional_info  TEXT             NOT NULL DEFAULT '',
    detection_method TEXT             NOT NULL,
    confidence       DOUBLE PRECISION NOT NULL,
    embedding        vector(%d)
);

CREATE INDEX IF NOT EXISTS idx_sightings_run_id
    ON sightings (run_id);

CREATE INDEX IF NOT EXISTS idx_sightings_phylum
    ON sightings (phylum);

CREATE INDEX IF NOT EXISTS idx_sightings_common_name
    ON sightings (lower(common_name));

CREATE INDEX IF NOT EXISTS idx_sightings_embedding
    ON sightings USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions
// exist. It is idempotent and safe to call on every application start.
//
// embeddingDimensions must match the vector model configured for your
// deployment (e.g., 1536 for OpenAI text-embedding-3-small, 768 for
// nomic-embed-text). Changing this value after the first migration requires
// a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlAnalysisRuns,
		ddlSightings(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
