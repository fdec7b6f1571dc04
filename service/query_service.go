package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"reguquery-backend/fallback"
	"reguquery-backend/models"
	"reguquery-backend/repository"

	"github.com/google/uuid"
)

var (
	ErrEmptyQuestion = errors.New("question must not be empty")
	ErrMissingScope  = errors.New("jurisdiction and asset are required")
	ErrEmbedQuery    = errors.New("failed to embed query")
	ErrSearchFailed  = errors.New("vector search failed")
)

// QueryEmbedder turns the question into a query vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

// CandidateSearcher performs the metadata-filtered similarity search.
type CandidateSearcher interface {
	Search(ctx context.Context, embedding []float64, filter repository.SearchFilter, topK int) ([]models.Candidate, error)
}

// CandidateReranker optionally rescoring the candidate list. skipped=true
// means the stage was abandoned and the result is the pre-rerank ordering.
type CandidateReranker interface {
	Rerank(ctx context.Context, question string, candidates []models.Candidate) (kept []models.Candidate, skipped bool)
}

// AnswerComposer builds the final answer from candidates.
type AnswerComposer interface {
	Compose(question, lang string, candidates []models.Candidate) (string, []models.Citation)
}

// FallbackAnswerer is the external-search path used only on empty search
// results. A nil result means nothing citable was found.
type FallbackAnswerer interface {
	Answer(ctx context.Context, question, jurisdiction, asset string) (*fallback.Result, error)
}

// QueryConfig bounds the online query pipeline.
type QueryConfig struct {
	TopK          int // candidates fetched from the index
	Keep          int // candidates passed to the composer
	RerankEnabled bool
	EmbedTimeout  time.Duration
	SearchTimeout time.Duration
}

func (c QueryConfig) withDefaults() QueryConfig {
	if c.TopK <= 0 {
		c.TopK = 12
	}
	if c.Keep <= 0 {
		c.Keep = 5
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = 15 * time.Second
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 10 * time.Second
	}
	return c
}

// queryState makes the decision cascade an explicit state machine so the
// mode-selection invariants stay directly testable.
type queryState int

const (
	stateStart queryState = iota
	stateEmbedded
	stateSearched
	stateReranked
	stateComposed
	stateFallback
	stateRefused
	stateResponded
)

// QueryService sequences embed → search → [rerank] → compose, falling back
// to external search only when the index yields nothing, and to an honest
// refusal when the fallback is uncitable. It holds no per-request state;
// concurrent queries are independent.
type QueryService struct {
	embedder QueryEmbedder
	searcher CandidateSearcher
	reranker CandidateReranker
	composer AnswerComposer
	fallback FallbackAnswerer
	cfg      QueryConfig
}

// QueryServiceOption is a functional option for QueryService
type QueryServiceOption func(*QueryService)

func QueryWithEmbedder(e QueryEmbedder) QueryServiceOption {
	return func(s *QueryService) { s.embedder = e }
}

func QueryWithSearcher(cs CandidateSearcher) QueryServiceOption {
	return func(s *QueryService) { s.searcher = cs }
}

func QueryWithReranker(r CandidateReranker) QueryServiceOption {
	return func(s *QueryService) { s.reranker = r }
}

func QueryWithComposer(c AnswerComposer) QueryServiceOption {
	return func(s *QueryService) { s.composer = c }
}

func QueryWithFallback(f FallbackAnswerer) QueryServiceOption {
	return func(s *QueryService) { s.fallback = f }
}

func QueryWithConfig(cfg QueryConfig) QueryServiceOption {
	return func(s *QueryService) { s.cfg = cfg }
}

// NewQueryService creates a new query service
func NewQueryService(opts ...QueryServiceOption) *QueryService {
	s := &QueryService{cfg: QueryConfig{RerankEnabled: true}}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg = s.cfg.withDefaults()
	return s
}

// Answer runs one query through the cascade and always returns a
// well-formed response for empty-result and unverifiable-answer
// conditions; only validation and hard backend failures surface as errors.
func (s *QueryService) Answer(ctx context.Context, req models.QueryRequest) (*models.QueryResponse, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, ErrEmptyQuestion
	}
	if req.Jurisdiction == "" || req.Asset == "" {
		return nil, ErrMissingScope
	}
	if s.embedder == nil || s.searcher == nil || s.composer == nil {
		return nil, errors.New("query service not fully configured")
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.New().String()
	}
	started := time.Now()

	var (
		state      = stateStart
		vector     []float64
		candidates []models.Candidate
		resp       *models.QueryResponse
	)

	for state != stateResponded {
		switch state {
		case stateStart:
			embedCtx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
			v, err := s.embedder.EmbedQuery(embedCtx, req.Question)
			cancel()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrEmbedQuery, err)
			}
			vector = v
			state = stateEmbedded

		case stateEmbedded:
			filter := repository.SearchFilter{
				Jurisdiction: req.Jurisdiction,
				Asset:        req.Asset,
			}
			if req.DocumentClass != "" {
				dc := req.DocumentClass
				filter.DocumentClass = &dc
			}
			searchCtx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
			found, err := s.searcher.Search(searchCtx, vector, filter, s.cfg.TopK)
			cancel()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
			}
			candidates = found
			if len(candidates) == 0 {
				state = stateFallback
			} else {
				state = stateSearched
			}

		case stateSearched:
			if s.cfg.RerankEnabled && s.reranker != nil {
				kept, skipped := s.reranker.Rerank(ctx, req.Question, candidates)
				if skipped {
					log.Printf("trace %s: rerank skipped, using similarity order", traceID)
				}
				candidates = kept
			} else if len(candidates) > s.cfg.Keep {
				candidates = candidates[:s.cfg.Keep]
			}
			state = stateReranked

		case stateReranked:
			answer, citations := s.composer.Compose(req.Question, req.Lang, candidates)
			resp = &models.QueryResponse{
				AnswerText: answer,
				Citations:  citations,
				Mode:       models.ModeIndexed,
				TraceID:    traceID,
			}
			state = stateComposed

		case stateComposed:
			state = stateResponded

		case stateFallback:
			if s.fallback == nil {
				state = stateRefused
				break
			}
			result, err := s.fallback.Answer(ctx, req.Question, req.Jurisdiction, req.Asset)
			if err != nil {
				// Fallback failure degrades to refusal; the query itself
				// still succeeds with an honest response.
				log.Printf("trace %s: fallback failed: %v", traceID, err)
				state = stateRefused
				break
			}
			if result == nil {
				state = stateRefused
				break
			}
			resp = &models.QueryResponse{
				AnswerText: result.AnswerText,
				Citations:  result.Citations,
				Mode:       models.ModeFallback,
				TraceID:    traceID,
			}
			state = stateResponded

		case stateRefused:
			resp = &models.QueryResponse{
				AnswerText: refusalText(req.Lang),
				Citations:  []models.Citation{},
				Mode:       models.ModeRefusal,
				TraceID:    traceID,
			}
			state = stateResponded
		}
	}

	resp.ElapsedMS = time.Since(started).Milliseconds()
	return resp, nil
}

func refusalText(lang string) string {
	base := lang
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	switch strings.ToLower(base) {
	case "zh":
		return "未能在已收录的法规库或官方公开渠道中找到可引用的依据，无法回答该问题。"
	default:
		return "No citable source was found in the indexed regulations or through official channels, so this question cannot be answered."
	}
}
