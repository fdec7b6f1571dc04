package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// chunkNamespace seeds deterministic chunk ids so that re-ingesting the
// same document always produces the same ids (required for idempotent upsert).
var chunkNamespace = uuid.MustParse("8f1f9a52-3c4e-4e21-9f0d-6b7a5d2c1e03")

// Chunk is a bounded span of a document's normalized text, the unit of
// embedding and retrieval. Metadata is denormalized from the parent
// document so searches can filter without a join.
type Chunk struct {
	ID            uuid.UUID  `json:"id"`
	DocumentID    string     `json:"document_id"`
	Index         int        `json:"index"`
	Text          string     `json:"text"`
	Oversized     bool       `json:"oversized,omitempty"` // single sentence exceeded the token budget
	Title         string     `json:"title"`
	Jurisdiction  string     `json:"jurisdiction"`
	Asset         string     `json:"asset"`
	DocumentClass string     `json:"document_class"`
	SourceURL     string     `json:"source_url"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
	Embedding     []float64  `json:"-"`
}

// ChunkID derives the deterministic id for a chunk of a given document.
func ChunkID(documentID string, index int) uuid.UUID {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s:%d", documentID, index)))
}

// Candidate pairs a retrieved chunk with its query-time scores. Candidates
// live for a single query and are never persisted.
type Candidate struct {
	Chunk       Chunk   `json:"chunk"`
	Similarity  float64 `json:"similarity"`
	RerankScore int     `json:"rerank_score,omitempty"` // 0 until the rerank stage scores it
}

// Citation points at the source document a quoted span came from.
type Citation struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	EffectiveDate *string `json:"effective_date"`
}

// CitationFor derives a citation from a chunk's parent document metadata.
func CitationFor(c Chunk) Citation {
	cit := Citation{Title: c.Title, URL: c.SourceURL}
	if c.EffectiveDate != nil {
		d := c.EffectiveDate.Format("2006-01-02")
		cit.EffectiveDate = &d
	}
	return cit
}
