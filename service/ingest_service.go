package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"reguquery-backend/chunker"
	"reguquery-backend/models"
	"reguquery-backend/normalizer"

	"golang.org/x/sync/errgroup"
)

// DocumentStore persists document records and the supersession chain.
type DocumentStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, doc *models.Document) error
	Supersede(ctx context.Context, sourceURL, newID string) ([]string, error)
}

// ChunkWriter mutates the vector index.
type ChunkWriter interface {
	UpsertBatch(ctx context.Context, chunks []models.Chunk) []error
	DeleteByDocument(ctx context.Context, documentID string) error
}

// BatchEmbedder embeds chunk texts in bounded batches.
type BatchEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// DocumentSource supplies acquired documents for ingestion. Acquisition
// and OCR failures are the source's concern; it only yields documents it
// could fully extract.
type DocumentSource interface {
	Discover(ctx context.Context) ([]models.SourceDocument, error)
}

// IngestConfig bounds the offline ingestion pipeline.
type IngestConfig struct {
	// Concurrency caps simultaneous in-flight document pipelines, which
	// also bounds concurrent embedding batches against the backend.
	Concurrency int
	Lang        string
}

func (c IngestConfig) withDefaults() IngestConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Lang == "" {
		c.Lang = "zh"
	}
	return c
}

// IngestService runs normalize → chunk → embed → upsert for each
// discovered document. Per-document failures are collected into the
// report; one document never aborts the batch. Chunk ids are
// deterministic, so concurrent re-ingestion of the same document
// converges without locks.
type IngestService struct {
	docs     DocumentStore
	chunks   ChunkWriter
	embedder BatchEmbedder
	splitter *chunker.Chunker
	cfg      IngestConfig
}

// IngestServiceOption is a functional option for IngestService
type IngestServiceOption func(*IngestService)

func IngestWithDocumentStore(ds DocumentStore) IngestServiceOption {
	return func(s *IngestService) { s.docs = ds }
}

func IngestWithChunkWriter(cw ChunkWriter) IngestServiceOption {
	return func(s *IngestService) { s.chunks = cw }
}

func IngestWithEmbedder(e BatchEmbedder) IngestServiceOption {
	return func(s *IngestService) { s.embedder = e }
}

func IngestWithChunker(c *chunker.Chunker) IngestServiceOption {
	return func(s *IngestService) { s.splitter = c }
}

func IngestWithConfig(cfg IngestConfig) IngestServiceOption {
	return func(s *IngestService) { s.cfg = cfg }
}

// NewIngestService creates a new ingest service
func NewIngestService(opts ...IngestServiceOption) *IngestService {
	s := &IngestService{}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg = s.cfg.withDefaults()
	if s.splitter == nil {
		s.splitter = chunker.New(chunker.Config{})
	}
	return s
}

// Ingest discovers documents from the source and processes them. The
// returned report is the only externally visible side effect besides the
// vector store mutation.
func (s *IngestService) Ingest(ctx context.Context, source DocumentSource) (*models.IngestReport, error) {
	if s.docs == nil || s.chunks == nil || s.embedder == nil {
		return nil, errors.New("ingest service not fully configured")
	}

	discovered, err := source.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover documents: %w", err)
	}

	var (
		mu     sync.Mutex
		report models.IngestReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, src := range discovered {
		g.Go(func() error {
			status, err := s.ingestOne(gctx, src)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Errors = append(report.Errors, models.IngestError{
					SourceURL: src.SourceURL,
					Message:   err.Error(),
				})
			case status == statusDuplicate:
				report.SkippedDuplicate++
			default:
				report.Processed++
			}
			return nil // per-document errors never abort the batch
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &report, nil
}

type ingestStatus int

const (
	statusProcessed ingestStatus = iota
	statusDuplicate
)

func (s *IngestService) ingestOne(ctx context.Context, src models.SourceDocument) (ingestStatus, error) {
	id := models.DocumentID(src.RawText)

	exists, err := s.docs.Exists(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("dedup check failed: %w", err)
	}
	if exists {
		return statusDuplicate, nil
	}

	normalized, err := normalizer.Normalize(src.RawText, s.cfg.Lang)
	if err != nil {
		return 0, fmt.Errorf("normalization failed: %w", err)
	}
	if normalized == "" {
		return 0, errors.New("document has no usable text")
	}

	doc := models.Document{
		ID:            id,
		Title:         src.Title,
		Jurisdiction:  src.Jurisdiction,
		Asset:         src.Asset,
		DocumentClass: src.DocumentClass,
		SourceURL:     src.SourceURL,
		EffectiveDate: normalizer.ExtractEffectiveDate(normalized),
		RawText:       src.RawText,
		LowQuality:    src.LowQuality,
	}

	chunks := s.splitter.Chunk(doc, normalized)
	if len(chunks) == 0 {
		return 0, errors.New("chunking produced no chunks")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	if errs := s.chunks.UpsertBatch(ctx, chunks); len(errs) > 0 {
		return 0, fmt.Errorf("upsert failed for %d batches: %v", len(errs), errors.Join(errs...))
	}

	if err := s.docs.Create(ctx, &doc); err != nil {
		return 0, fmt.Errorf("failed to record document: %w", err)
	}

	// Changed content under the same URL supersedes earlier ingests; their
	// chunks leave the index so stale text can no longer be retrieved.
	superseded, err := s.docs.Supersede(ctx, src.SourceURL, id)
	if err != nil {
		return 0, fmt.Errorf("failed to supersede prior versions: %w", err)
	}
	for _, oldID := range superseded {
		if err := s.chunks.DeleteByDocument(ctx, oldID); err != nil {
			log.Printf("Warning: failed to drop chunks of superseded document %s: %v", oldID, err)
		}
	}
	return statusProcessed, nil
}
