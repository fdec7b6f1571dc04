package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel     = "gemini-embedding-001"
	defaultDimension = 768
	defaultBatchSize = 100
	defaultCharLimit = 8000
	maxRetries       = 3
	initialBackoff   = time.Second
)

var (
	// ErrEmbeddingFailed is returned after retries are exhausted or the
	// backend keeps producing vectors that fail the sanity checks.
	ErrEmbeddingFailed = errors.New("failed to generate embedding")
	// ErrBadDimension is returned when the backend returns a vector of
	// unexpected dimensionality. Not retried at the caller level.
	ErrBadDimension = errors.New("embedding has unexpected dimension")
)

// Config holds everything the client needs; no ambient globals are read
// after construction.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	BatchSize int
	CharLimit int
	Timeout   time.Duration
	// RatePerSecond bounds outgoing batch calls; zero disables limiting.
	RatePerSecond float64
}

// ConfigFromEnv builds a Config from environment variables, applying
// defaults for anything unset.
func ConfigFromEnv() Config {
	cfg := Config{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		BaseURL: os.Getenv("EMBEDDING_BASE_URL"),
		Model:   os.Getenv("EMBEDDING_MODEL"),
	}
	if v := os.Getenv("EMBEDDING_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dimension = n
		}
	}
	if v := os.Getenv("EMBEDDING_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchSize = n
		}
	}
	return cfg
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Dimension <= 0 {
		c.Dimension = defaultDimension
	}
	if c.BatchSize <= 0 || c.BatchSize > defaultBatchSize {
		c.BatchSize = defaultBatchSize
	}
	if c.CharLimit <= 0 {
		c.CharLimit = defaultCharLimit
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// Client converts text into fixed-dimension dense vectors via the Gemini
// embedding API. Batches are bounded, inputs truncated to the character
// ceiling, and transient failures retried with exponential backoff.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
	}
}

// Dimension returns the configured embedding dimensionality.
func (c *Client) Dimension() int {
	return c.cfg.Dimension
}

type embedRequest struct {
	Model                string       `json:"model"`
	Content              contentInput `json:"content"`
	TaskType             string       `json:"task_type,omitempty"`
	OutputDimensionality int          `json:"output_dimensionality,omitempty"`
}

type contentInput struct {
	Parts []partInput `json:"parts"`
}

type partInput struct {
	Text string `json:"text"`
}

type batchEmbedRequest struct {
	Requests []embedRequest `json:"requests"`
}

type batchEmbedResponse struct {
	Embeddings []struct {
		Values []float64 `json:"values"`
	} `json:"embeddings"`
}

// Embed converts a list of texts into vectors, preserving order. The call
// is split into batches of at most BatchSize texts.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return c.embed(ctx, texts, "RETRIEVAL_DOCUMENT")
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) embed(ctx context.Context, texts []string, taskType string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := c.embedBatch(ctx, texts[start:end], taskType)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string, taskType string) ([][]float64, error) {
	reqBody := batchEmbedRequest{Requests: make([]embedRequest, len(texts))}
	for i, text := range texts {
		if len([]rune(text)) > c.cfg.CharLimit {
			log.Printf("Warning: embedding input truncated from %d to %d chars", len([]rune(text)), c.cfg.CharLimit)
			text = string([]rune(text)[:c.cfg.CharLimit])
		}
		reqBody.Requests[i] = embedRequest{
			Model:                "models/" + c.cfg.Model,
			Content:              contentInput{Parts: []partInput{{Text: text}}},
			TaskType:             taskType,
			OutputDimensionality: c.cfg.Dimension,
		}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:batchEmbedContents", c.cfg.BaseURL, c.cfg.Model)

	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		vectors, retryable, err := c.doBatch(ctx, url, jsonData, len(texts))
		if err == nil {
			return vectors, nil
		}
		if !retryable || attempt == maxRetries-1 {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}
	}
	return nil, ErrEmbeddingFailed
}

// doBatch performs one HTTP round trip. The second return reports whether
// the failure is worth retrying.
func (c *Client) doBatch(ctx context.Context, url string, body []byte, want int) ([][]float64, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return nil, false, fmt.Errorf("API error: %d", resp.StatusCode)
	default:
		return nil, true, fmt.Errorf("API error: %d", resp.StatusCode)
	}

	var apiResp batchEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, true, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(apiResp.Embeddings) != want {
		return nil, true, fmt.Errorf("expected %d embeddings, got %d", want, len(apiResp.Embeddings))
	}

	vectors := make([][]float64, len(apiResp.Embeddings))
	for i, e := range apiResp.Embeddings {
		v, err := c.sanitize(e.Values)
		if err != nil {
			// A malformed vector earns a single retry before failing.
			return nil, true, err
		}
		vectors[i] = v
	}
	return vectors, false, nil
}

// sanitize L2-normalizes the vector and enforces the dimension and
// component-range bounds.
func (c *Client) sanitize(v []float64) ([]float64, error) {
	if len(v) != c.cfg.Dimension {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrBadDimension, c.cfg.Dimension, len(v))
	}
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return nil, fmt.Errorf("zero-norm embedding")
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
		if v[i] < -1 || v[i] > 1 {
			return nil, fmt.Errorf("embedding component out of range: %f", v[i])
		}
	}
	return v, nil
}
