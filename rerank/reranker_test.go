package rerank

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reguquery-backend/models"
)

type fakeJudge struct {
	output string
	err    error
	delay  time.Duration
}

func (f *fakeJudge) Score(ctx context.Context, prompt string) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.output, f.err
}

func candidates(n int) []models.Candidate {
	out := make([]models.Candidate, n)
	for i := range out {
		out[i] = models.Candidate{
			Chunk:      models.Chunk{Text: fmt.Sprintf("第%d条规定。", i+1)},
			Similarity: 1.0 - float64(i)*0.05,
		}
	}
	return out
}

func TestRerankOrdersByScore(t *testing.T) {
	judge := &fakeJudge{output: "1: 3\n2: 9\n3: 6\n"}
	r := New(judge, Config{Keep: 2})

	kept, skipped := r.Rerank(t.Context(), "q", candidates(3))
	require.False(t, skipped)
	require.Len(t, kept, 2)
	assert.Equal(t, 9, kept[0].RerankScore)
	assert.Equal(t, 6, kept[1].RerankScore)
}

func TestRerankBreaksTiesBySimilarityRank(t *testing.T) {
	judge := &fakeJudge{output: "1: 7\n2: 7\n3: 7\n"}
	r := New(judge, Config{Keep: 3})

	kept, skipped := r.Rerank(t.Context(), "q", candidates(3))
	require.False(t, skipped)
	require.Len(t, kept, 3)
	// Equal scores preserve the original similarity ordering.
	assert.Equal(t, "第1条规定。", kept[0].Chunk.Text)
	assert.Equal(t, "第2条规定。", kept[1].Chunk.Text)
	assert.Equal(t, "第3条规定。", kept[2].Chunk.Text)
}

func TestRerankSkipsOnJudgeError(t *testing.T) {
	judge := &fakeJudge{err: errors.New("backend down")}
	r := New(judge, Config{Keep: 5})

	kept, skipped := r.Rerank(t.Context(), "q", candidates(8))
	assert.True(t, skipped)
	require.Len(t, kept, 5)
	// Pre-rerank similarity ordering survives.
	assert.Equal(t, "第1条规定。", kept[0].Chunk.Text)
}

func TestRerankSkipsOnMalformedOutput(t *testing.T) {
	for _, output := range []string{
		"the first one is best",
		"1: 11\n2: 5\n3: 5",
		"1: 7\n2: 8", // missing score for candidate 3
		"1: 7\n1: 8\n2: 5\n3: 5",
	} {
		judge := &fakeJudge{output: output}
		r := New(judge, Config{Keep: 3})
		kept, skipped := r.Rerank(t.Context(), "q", candidates(3))
		assert.True(t, skipped, "output %q should be rejected", output)
		assert.Len(t, kept, 3)
	}
}

func TestRerankSkipsOnTimeout(t *testing.T) {
	judge := &fakeJudge{output: "1: 9", delay: time.Second}
	r := New(judge, Config{Keep: 3, Timeout: 20 * time.Millisecond})

	start := time.Now()
	kept, skipped := r.Rerank(t.Context(), "q", candidates(3))
	assert.True(t, skipped)
	assert.Len(t, kept, 3)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRerankCapsInputAtMaxCandidates(t *testing.T) {
	judge := &fakeJudge{output: "1: 5\n2: 5\n3: 5\n4: 5\n"}
	r := New(judge, Config{MaxCandidates: 4, Keep: 2})

	kept, skipped := r.Rerank(t.Context(), "q", candidates(10))
	require.False(t, skipped)
	assert.Len(t, kept, 2)
}
