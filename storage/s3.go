package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"reguquery-backend/models"
)

// S3Source reads acquired documents from an S3 bucket. Object layout
// mirrors LocalSource: <key>.txt plus <key>.meta.json under a prefix.
type S3Source struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Source creates a new S3 document source
func NewS3Source(cfg SourceConfig) (*S3Source, error) {
	ctx := context.Background()

	var awsCfg aws.Config
	var err error

	if cfg.AWSAccessKey != "" && cfg.AWSSecretKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AWSAccessKey,
				cfg.AWSSecretKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Source{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.S3Bucket,
		prefix: cfg.S3Prefix,
	}, nil
}

// Discover lists text objects under the prefix and pairs each with its
// sidecar. Objects without a readable sidecar are logged and skipped.
func (s *S3Source) Discover(ctx context.Context) ([]models.SourceDocument, error) {
	var docs []models.SourceDocument

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".txt") {
				continue
			}
			doc, err := s.loadObjectPair(ctx, key)
			if err != nil {
				log.Printf("Warning: skipping s3://%s/%s: %v", s.bucket, key, err)
				continue
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (s *S3Source) loadObjectPair(ctx context.Context, textKey string) (models.SourceDocument, error) {
	raw, err := s.getObject(ctx, textKey)
	if err != nil {
		return models.SourceDocument{}, fmt.Errorf("failed to fetch text: %w", err)
	}
	metaKey := strings.TrimSuffix(textKey, ".txt") + ".meta.json"
	metaBytes, err := s.getObject(ctx, metaKey)
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

func (s *S3Source) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
