package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"reguquery-backend/models"
)

// LocalSource reads acquired documents from a local directory. Each
// document is a <name>.txt file with a <name>.meta.json sidecar carrying
// the acquisition metadata.
type LocalSource struct {
	basePath string
}

// NewLocalSource creates a local document source, creating the directory
// if it does not exist yet.
func NewLocalSource(basePath string) (*LocalSource, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create source directory: %w", err)
	}
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("source directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path is not a directory: %s", basePath)
	}
	return &LocalSource{basePath: basePath}, nil
}

type sidecarMeta struct {
	Title         string `json:"title"`
	SourceURL     string `json:"source_url"`
	Jurisdiction  string `json:"jurisdiction"`
	Asset         string `json:"asset"`
	DocumentClass string `json:"document_class"`
	LowQuality    bool   `json:"low_quality,omitempty"`
}

// Discover lists every text file with a valid sidecar. Files with missing
// or malformed sidecars are logged and skipped; they do not fail discovery.
func (s *LocalSource) Discover(ctx context.Context) ([]models.SourceDocument, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory: %w", err)
	}

	var docs []models.SourceDocument
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		textPath := filepath.Join(s.basePath, entry.Name())
		metaPath := strings.TrimSuffix(textPath, ".txt") + ".meta.json"

		doc, err := loadPair(textPath, metaPath)
		if err != nil {
			log.Printf("Warning: skipping %s: %v", entry.Name(), err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func loadPair(textPath, metaPath string) (models.SourceDocument, error) {
	raw, err := os.ReadFile(textPath)
	if err != nil {
		return models.SourceDocument{}, fmt.Errorf("failed to read text: %w", err)
	}
	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return models.SourceDocument{}, fmt.Errorf("missing sidecar metadata: %w", err)
	}
	var meta sidecarMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return models.SourceDocument{}, fmt.Errorf("malformed sidecar metadata: %w", err)
	}
	if meta.SourceURL == "" || meta.Jurisdiction == "" || meta.Asset == "" {
		return models.SourceDocument{}, fmt.Errorf("sidecar missing required fields")
	}
	return models.SourceDocument{
		RawText:       string(raw),
		Title:         meta.Title,
		SourceURL:     meta.SourceURL,
		Jurisdiction:  meta.Jurisdiction,
		Asset:         meta.Asset,
		DocumentClass: meta.DocumentClass,
		LowQuality:    meta.LowQuality,
	}, nil
}
