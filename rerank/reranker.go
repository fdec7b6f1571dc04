package rerank

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"reguquery-backend/models"

	"github.com/google/generative-ai-go/genai"
)

const (
	defaultMaxCandidates = 12
	defaultKeep          = 5
	defaultTimeout       = 4 * time.Second
	excerptRunes         = 500
)

// Judge scores a relevance prompt and returns the raw model output. The
// interface exists so the pipeline can be tested without a live model.
type Judge interface {
	Score(ctx context.Context, prompt string) (string, error)
}

// GeminiJudge asks a Gemini model to score candidates. Temperature is held
// low so repeated runs over the same candidates stay comparable.
type GeminiJudge struct {
	model *genai.GenerativeModel
}

func NewGeminiJudge(client *genai.Client, modelName string) *GeminiJudge {
	m := client.GenerativeModel(modelName)
	m.SetTemperature(0.1)
	return &GeminiJudge{model: m}
}

func (j *GeminiJudge) Score(ctx context.Context, prompt string) (string, error) {
	resp, err := j.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("judge call failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("judge returned no content")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

// Config bounds the rerank stage.
type Config struct {
	MaxCandidates int
	Keep          int
	Timeout       time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = defaultMaxCandidates
	}
	if c.Keep <= 0 {
		c.Keep = defaultKeep
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

// Reranker is an optional quality filter over the retrieved candidates. It
// never blocks the pipeline: any judge failure, timeout, or unparsable
// output causes the stage to be skipped, falling back to the pre-rerank
// similarity ordering.
type Reranker struct {
	judge Judge
	cfg   Config
}

func New(judge Judge, cfg Config) *Reranker {
	return &Reranker{judge: judge, cfg: cfg.withDefaults()}
}

var scoreLine = regexp.MustCompile(`(?m)^\s*(\d+)\s*[:：]\s*(\d+)\s*$`)

// Rerank scores up to MaxCandidates candidates and keeps the best Keep of
// them, ties broken by the original similarity rank. The returned slice is
// always safe to use downstream; skipped reports whether the stage was
// abandoned (in which case the result is the similarity ordering truncated
// to the same length).
func (r *Reranker) Rerank(ctx context.Context, question string, candidates []models.Candidate) (kept []models.Candidate, skipped bool) {
	if len(candidates) > r.cfg.MaxCandidates {
		candidates = candidates[:r.cfg.MaxCandidates]
	}
	if len(candidates) == 0 {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	output, err := r.judge.Score(ctx, r.buildPrompt(question, candidates))
	if err != nil {
		log.Printf("Warning: rerank skipped: %v", err)
		return truncate(candidates, r.cfg.Keep), true
	}

	scores, ok := parseScores(output, len(candidates))
	if !ok {
		log.Printf("Warning: rerank skipped: malformed judge output")
		return truncate(candidates, r.cfg.Keep), true
	}

	ranked := make([]models.Candidate, len(candidates))
	copy(ranked, candidates)
	for i := range ranked {
		ranked[i].RerankScore = scores[i]
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].RerankScore > ranked[b].RerankScore
	})
	return truncate(ranked, r.cfg.Keep), false
}

func truncate(candidates []models.Candidate, n int) []models.Candidate {
	if len(candidates) > n {
		return candidates[:n]
	}
	return candidates
}

func (r *Reranker) buildPrompt(question string, candidates []models.Candidate) string {
	var b strings.Builder
	b.WriteString("You are scoring how relevant each regulatory text excerpt is to the question.\n")
	b.WriteString("Question: " + question + "\n\n")
	for i, c := range candidates {
		text := c.Chunk.Text
		if runes := []rune(text); len(runes) > excerptRunes {
			text = string(runes[:excerptRunes])
		}
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, text)
	}
	fmt.Fprintf(&b, "Reply with exactly %d lines, one per excerpt, each of the form\n", len(candidates))
	b.WriteString("\"<number>: <score>\" where score is an integer from 1 (irrelevant) to 10 (directly answers the question). No other text.")
	return b.String()
}

// parseScores extracts one integer score per candidate. Missing, duplicate
// or out-of-range entries make the whole output unusable.
func parseScores(output string, n int) ([]int, bool) {
	scores := make([]int, n)
	seen := make([]bool, n)
	for _, m := range scoreLine.FindAllStringSubmatch(output, -1) {
		idx, _ := strconv.Atoi(m[1])
		score, _ := strconv.Atoi(m[2])
		if idx < 1 || idx > n || score < 1 || score > 10 || seen[idx-1] {
			return nil, false
		}
		scores[idx-1] = score
		seen[idx-1] = true
	}
	for _, s := range seen {
		if !s {
			return nil, false
		}
	}
	return scores, true
}
