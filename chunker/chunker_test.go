package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reguquery-backend/models"
)

func testDoc(text string) models.Document {
	return models.Document{
		ID:            models.DocumentID(text),
		Title:         "分布式光伏发电项目并网验收办法",
		Jurisdiction:  "gd",
		Asset:         "solar",
		DocumentClass: "regulation",
		SourceURL:     "https://example.gov.cn/doc/1",
	}
}

func TestShortDocumentYieldsSingleChunk(t *testing.T) {
	c := New(Config{TokenBudget: 800, OverlapTokens: 100})
	text := "并网验收需要提交申请表。还需要提交设计文件。"
	chunks := c.Chunk(testDoc(text), text)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, text, chunks[0].Text)
	assert.False(t, chunks[0].Oversized)
}

func TestChunkingIsDeterministic(t *testing.T) {
	c := New(Config{TokenBudget: 40, OverlapTokens: 10})
	var b strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "第%d条规定了并网验收所需要提交的具体材料与办理时限。", i+1)
	}
	text := b.String()
	doc := testDoc(text)

	first := c.Chunk(doc, text)
	second := c.Chunk(doc, text)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
	assert.Greater(t, len(first), 1)
}

func TestChunksOverlap(t *testing.T) {
	c := New(Config{TokenBudget: 30, OverlapTokens: 12})
	var b strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "第%d条是关于项目备案的规定。", i+1)
	}
	text := b.String()
	chunks := c.Chunk(testDoc(text), text)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		// Each chunk must begin with a sentence already present at the
		// tail of its predecessor.
		firstSentence := strings.SplitAfter(chunks[i].Text, "。")[0]
		assert.Contains(t, chunks[i-1].Text, firstSentence,
			"chunk %d does not overlap its predecessor", i)
	}
}

func TestOversizedSentenceIsTruncatedAndFlagged(t *testing.T) {
	c := New(Config{TokenBudget: 20, OverlapTokens: 5})
	long := strings.Repeat("光", 100) + "。"
	chunks := c.Chunk(testDoc(long), long)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Oversized)
	assert.LessOrEqual(t, len([]rune(chunks[0].Text)), 21)
}

func TestChunksInheritDocumentMetadata(t *testing.T) {
	c := New(Config{})
	text := "本办法自发布之日起施行。"
	doc := testDoc(text)
	chunks := c.Chunk(doc, text)
	require.Len(t, chunks, 1)
	assert.Equal(t, doc.Jurisdiction, chunks[0].Jurisdiction)
	assert.Equal(t, doc.Asset, chunks[0].Asset)
	assert.Equal(t, doc.DocumentClass, chunks[0].DocumentClass)
	assert.Equal(t, doc.SourceURL, chunks[0].SourceURL)
	assert.Equal(t, models.ChunkID(doc.ID, 0), chunks[0].ID)
}

func TestEmptyTextYieldsNoChunks(t *testing.T) {
	c := New(Config{})
	assert.Empty(t, c.Chunk(testDoc(""), ""))
}
