package repository

import (
	"context"
	"errors"
	"fmt"

	"reguquery-backend/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDocumentNotFound is returned when a document id has never been ingested.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentRepository handles database operations for ingested documents.
type DocumentRepository struct {
	db *pgxpool.Pool
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Exists reports whether a document with the given content hash was already
// ingested. This is the ingestion dedup check.
func (r *DocumentRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM reg_documents WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check document existence: %w", err)
	}
	return exists, nil
}

// Create inserts an immutable document record. Inserting the same hash
// twice is a no-op so concurrent re-ingestion converges.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO reg_documents (
			id, title, jurisdiction, asset, document_class, source_url,
			effective_date, raw_text, low_quality, ingested_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO NOTHING`,
		doc.ID, doc.Title, doc.Jurisdiction, doc.Asset, doc.DocumentClass,
		doc.SourceURL, doc.EffectiveDate, doc.RawText, doc.LowQuality,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// GetByID retrieves one document's metadata (raw text included).
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := r.db.QueryRow(ctx, `
		SELECT id, title, jurisdiction, asset, document_class, source_url,
		       effective_date, raw_text, low_quality, superseded_by, ingested_at
		FROM reg_documents
		WHERE id = $1`, id).Scan(
		&doc.ID, &doc.Title, &doc.Jurisdiction, &doc.Asset, &doc.DocumentClass,
		&doc.SourceURL, &doc.EffectiveDate, &doc.RawText, &doc.LowQuality,
		&doc.SupersededBy, &doc.IngestedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// Supersede marks every earlier non-superseded document with the same
// source URL as replaced by newID, and returns the superseded ids so the
// caller can drop their chunks.
func (r *DocumentRepository) Supersede(ctx context.Context, sourceURL, newID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE reg_documents
		SET superseded_by = $1
		WHERE source_url = $2 AND id <> $1 AND superseded_by IS NULL
		RETURNING id`, newID, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to supersede documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan superseded id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating superseded ids: %w", err)
	}
	return ids, nil
}
