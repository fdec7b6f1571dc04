package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"reguquery-backend/models"
)

const (
	defaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel       = "gemini-2.0-flash"
	defaultTimeout     = 20 * time.Second
	defaultRecencyDays = 730
	maxRetries         = 3
	initialBackoff     = time.Second
	backoffFactor      = 2
)

// Config for the external-search answer path.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	RecencyDays int
	// AllowedDomains maps a jurisdiction code to the official domains the
	// search is constrained to. The empty key holds the default set.
	AllowedDomains map[string][]string
}

// ConfigFromEnv builds a Config from environment variables.
func ConfigFromEnv() Config {
	return Config{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		BaseURL: os.Getenv("FALLBACK_BASE_URL"),
		Model:   os.Getenv("FALLBACK_MODEL"),
	}
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.RecencyDays <= 0 {
		c.RecencyDays = defaultRecencyDays
	}
	if c.AllowedDomains == nil {
		c.AllowedDomains = map[string][]string{
			"": {"gov.cn"},
		}
	}
	return c
}

// Result is a citable answer produced from external search.
type Result struct {
	AnswerText string
	Citations  []models.Citation
}

// Client answers questions through Gemini's search grounding when the
// curated index has nothing. An answer is only accepted when the model
// grounds it in at least one allow-listed source; otherwise the caller
// gets nil and the pipeline refuses.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		GroundingMetadata struct {
			GroundingChunks []struct {
				Web struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
}

// Answer runs the external search. It returns (nil, nil) when the search
// produced nothing citable — that is the designed refusal trigger, not an
// error.
func (c *Client) Answer(ctx context.Context, question, jurisdiction, asset string) (*Result, error) {
	domains := c.cfg.AllowedDomains[jurisdiction]
	if len(domains) == 0 {
		domains = c.cfg.AllowedDomains[""]
	}

	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]interface{}{
					{"text": c.buildPrompt(question, jurisdiction, asset, domains)},
				},
			},
		},
		"tools": []map[string]interface{}{
			{"google_search": map[string]interface{}{}},
		},
		"generationConfig": map[string]interface{}{
			"temperature": 0.2,
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	apiURL := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)

	var resp *generateResponse
	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= backoffFactor
		}
		resp, err = c.call(ctx, apiURL, jsonData)
		if err == nil {
			break
		}
		if attempt == maxRetries-1 {
			return nil, fmt.Errorf("external search failed after %d attempts: %w", maxRetries, err)
		}
	}

	if len(resp.Candidates) == 0 {
		return nil, nil
	}
	cand := resp.Candidates[0]

	var answer strings.Builder
	for _, part := range cand.Content.Parts {
		answer.WriteString(part.Text)
	}

	var citations []models.Citation
	seen := make(map[string]bool)
	for _, gc := range cand.GroundingMetadata.GroundingChunks {
		if gc.Web.URI == "" || seen[gc.Web.URI] {
			continue
		}
		if !domainAllowed(gc.Web.URI, domains) {
			log.Printf("Warning: dropping fallback citation outside allow-list: %s", gc.Web.URI)
			continue
		}
		seen[gc.Web.URI] = true
		citations = append(citations, models.Citation{
			Title: gc.Web.Title,
			URL:   gc.Web.URI,
		})
	}

	// No grounded citation means the answer cannot be verified; discard it.
	if answer.Len() == 0 || len(citations) == 0 {
		return nil, nil
	}
	return &Result{AnswerText: answer.String(), Citations: citations}, nil
}

func (c *Client) call(ctx context.Context, apiURL string, body []byte) (*generateResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error: %d - %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if apiResp.Error.Message != "" {
		return nil, fmt.Errorf("API error: %s (code: %d)", apiResp.Error.Message, apiResp.Error.Code)
	}
	return &apiResp, nil
}

func (c *Client) buildPrompt(question, jurisdiction, asset string, domains []string) string {
	var sites []string
	for _, d := range domains {
		sites = append(sites, "site:"+d)
	}
	return fmt.Sprintf(
		"Search official government sources (%s) for regulations about %s assets in jurisdiction %q "+
			"published within the last %d days and answer the question strictly from what the search returns. "+
			"If the sources do not answer it, say so.\n\nQuestion: %s",
		strings.Join(sites, " OR "), asset, jurisdiction, c.cfg.RecencyDays, question)
}

// domainAllowed reports whether the citation host is the allow-listed
// domain or a subdomain of it.
func domainAllowed(rawURL string, domains []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
