package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Document represents a source regulatory file in the knowledge base.
// Documents are immutable once ingested; re-ingesting changed content
// produces a new document under a new hash that supersedes the old one.
type Document struct {
	ID            string     `json:"id"` // sha256 of the raw text
	Title         string     `json:"title"`
	Jurisdiction  string     `json:"jurisdiction"`
	Asset         string     `json:"asset"`
	DocumentClass string     `json:"document_class"`
	SourceURL     string     `json:"source_url"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
	RawText       string     `json:"-"`
	LowQuality    bool       `json:"low_quality"` // extraction-quality flag from the OCR pipeline
	SupersededBy  *string    `json:"superseded_by,omitempty"`
	IngestedAt    time.Time  `json:"ingested_at"`
}

// DocumentID computes the stable content hash used as a document id.
func DocumentID(rawText string) string {
	sum := sha256.Sum256([]byte(rawText))
	return hex.EncodeToString(sum[:])
}

// SourceDocument is the tuple handed to ingestion by the acquisition/OCR
// pipeline. Acquisition itself is outside this service.
type SourceDocument struct {
	RawText       string `json:"raw_text"`
	Title         string `json:"title"`
	SourceURL     string `json:"source_url"`
	Jurisdiction  string `json:"jurisdiction"`
	Asset         string `json:"asset"`
	DocumentClass string `json:"document_class"`
	LowQuality    bool   `json:"low_quality,omitempty"`
}
