package repository

import (
	"context"
	"fmt"
	"strings"

	"reguquery-backend/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

const upsertBatchSize = 100

// SearchFilter is the typed conjunction of metadata constraints applied to
// a vector search. Jurisdiction and asset are required; document class is
// optional.
type SearchFilter struct {
	Jurisdiction  string
	Asset         string
	DocumentClass *string
}

// ChunkRepository handles vector-store operations for regulation chunks.
type ChunkRepository struct {
	db        *pgxpool.Pool
	dimension int
}

// NewChunkRepository creates a new chunk repository. dimension is the
// expected embedding dimensionality (vectors of any other size are rejected
// before reaching the database).
func NewChunkRepository(db *pgxpool.Pool, dimension int) *ChunkRepository {
	return &ChunkRepository{db: db, dimension: dimension}
}

// formatVector formats an embedding vector as a string for pgx
func formatVector(embedding []float64) string {
	if len(embedding) == 0 {
		return "[]"
	}
	var parts []string
	for _, v := range embedding {
		parts = append(parts, fmt.Sprintf("%.6f", v))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// UpsertBatch writes chunks in batches of at most 100, keyed by chunk id so
// re-ingestion is idempotent. A failing batch does not abort the remaining
// batches; all batch errors are collected and returned.
func (r *ChunkRepository) UpsertBatch(ctx context.Context, chunks []models.Chunk) []error {
	var errs []error
	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := r.upsertOne(ctx, chunks[start:end]); err != nil {
			errs = append(errs, fmt.Errorf("batch %d-%d: %w", start, end, err))
		}
	}
	return errs
}

func (r *ChunkRepository) upsertOne(ctx context.Context, chunks []models.Chunk) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, chunk := range chunks {
		if len(chunk.Embedding) != r.dimension {
			return fmt.Errorf("chunk %s: embedding must be %d dimensions, got %d",
				chunk.ID, r.dimension, len(chunk.Embedding))
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO reg_chunks (
				id, document_id, chunk_index, chunk_text, oversized,
				title, jurisdiction, asset, document_class, source_url,
				effective_date, embedding
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::vector)
			ON CONFLICT (id) DO UPDATE SET
				chunk_text = EXCLUDED.chunk_text,
				oversized = EXCLUDED.oversized,
				title = EXCLUDED.title,
				effective_date = EXCLUDED.effective_date,
				embedding = EXCLUDED.embedding`,
			chunk.ID, chunk.DocumentID, chunk.Index, chunk.Text, chunk.Oversized,
			chunk.Title, chunk.Jurisdiction, chunk.Asset, chunk.DocumentClass,
			chunk.SourceURL, chunk.EffectiveDate, formatVector(chunk.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", chunk.ID, err)
		}
	}
	return tx.Commit(ctx)
}

// Search performs a cosine similarity search constrained by the metadata
// filter. Similarity is 1 - cosine distance, in [0,1] for normalized
// vectors. An empty index or a filter with no matches yields an empty
// slice, never an error — callers use that as the fallback trigger.
func (r *ChunkRepository) Search(
	ctx context.Context,
	embedding []float64,
	filter SearchFilter,
	topK int,
) ([]models.Candidate, error) {
	if len(embedding) != r.dimension {
		return nil, fmt.Errorf("embedding must be %d dimensions, got %d", r.dimension, len(embedding))
	}
	vectorStr := formatVector(embedding)

	conditions := []string{"jurisdiction = $2", "asset = $3"}
	args := []interface{}{vectorStr, filter.Jurisdiction, filter.Asset}
	if filter.DocumentClass != nil {
		args = append(args, *filter.DocumentClass)
		conditions = append(conditions, fmt.Sprintf("document_class = $%d", len(args)))
	}
	args = append(args, topK)

	query := fmt.Sprintf(`
		SELECT
			id,
			document_id,
			chunk_index,
			chunk_text,
			oversized,
			title,
			jurisdiction,
			asset,
			document_class,
			source_url,
			effective_date,
			1 - (embedding <=> $1::vector) AS similarity
		FROM reg_chunks
		WHERE %s
		ORDER BY embedding <=> $1::vector
		LIMIT $%d`, strings.Join(conditions, " AND "), len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var candidates []models.Candidate
	for rows.Next() {
		var c models.Candidate
		err := rows.Scan(
			&c.Chunk.ID,
			&c.Chunk.DocumentID,
			&c.Chunk.Index,
			&c.Chunk.Text,
			&c.Chunk.Oversized,
			&c.Chunk.Title,
			&c.Chunk.Jurisdiction,
			&c.Chunk.Asset,
			&c.Chunk.DocumentClass,
			&c.Chunk.SourceURL,
			&c.Chunk.EffectiveDate,
			&c.Similarity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if c.Similarity < 0 {
			c.Similarity = 0
		}
		if c.Similarity > 1 {
			c.Similarity = 1
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}
	return candidates, nil
}

// DeleteByDocument removes all chunks of a superseded document.
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.Exec(ctx, "DELETE FROM reg_chunks WHERE document_id = $1", documentID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks for document %s: %w", documentID, err)
	}
	return nil
}
