package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"reguquery-backend/models"
)

// SourceType represents the document source backend type
type SourceType string

const (
	SourceTypeLocal SourceType = "local"
	SourceTypeS3    SourceType = "s3"
)

// SourceConfig holds configuration for a document source
type SourceConfig struct {
	Type         SourceType
	LocalPath    string // For local sources
	S3Bucket     string // For S3 sources
	S3Prefix     string
	S3Region     string
	AWSAccessKey string
	AWSSecretKey string
}

// NewSource creates a document source based on configuration. Sources
// yield the (raw_text, metadata) tuples produced by the acquisition/OCR
// pipeline; each text object carries a sidecar .meta.json describing it.
func NewSource(cfg SourceConfig) (Source, error) {
	switch cfg.Type {
	case SourceTypeLocal:
		return NewLocalSource(cfg.LocalPath)
	case SourceTypeS3:
		return NewS3Source(cfg)
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Type)
	}
}

// Source enumerates acquired documents ready for ingestion.
type Source interface {
	Discover(ctx context.Context) ([]models.SourceDocument, error)
}

// NewSourceFromEnv creates a document source from environment variables
func NewSourceFromEnv() (Source, error) {
	sourceType := os.Getenv("SOURCE_TYPE")
	if sourceType == "" {
		sourceType = "local"
	}

	cfg := SourceConfig{Type: SourceType(sourceType)}

	switch SourceType(sourceType) {
	case SourceTypeLocal:
		localPath := os.Getenv("SOURCE_LOCAL_PATH")
		if localPath == "" {
			localPath = "./documents"
		}
		cfg.LocalPath = localPath
		return NewLocalSource(cfg.LocalPath)

	case SourceTypeS3:
		cfg.S3Bucket = os.Getenv("AWS_S3_BUCKET")
		cfg.S3Prefix = os.Getenv("AWS_S3_PREFIX")
		cfg.S3Region = os.Getenv("AWS_REGION")
		if cfg.S3Region == "" {
			cfg.S3Region = "us-east-1"
		}
		cfg.AWSAccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		cfg.AWSSecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")

		if cfg.S3Bucket == "" {
			return nil, errors.New("AWS_S3_BUCKET environment variable is required for S3 sources")
		}
		return NewS3Source(cfg)

	default:
		return nil, fmt.Errorf("unknown source type: %s", sourceType)
	}
}
