package chunker

import (
	"regexp"
	"strings"
	"unicode"

	"reguquery-backend/models"
)

const (
	defaultTokenBudget   = 800
	defaultOverlapTokens = 100
)

// Config controls chunk sizing. Overlap must stay below the budget; values
// out of range are clamped rather than rejected.
type Config struct {
	TokenBudget   int
	OverlapTokens int
}

func (c Config) withDefaults() Config {
	if c.TokenBudget <= 0 {
		c.TokenBudget = defaultTokenBudget
	}
	if c.OverlapTokens < 0 {
		c.OverlapTokens = defaultOverlapTokens
	}
	if c.OverlapTokens >= c.TokenBudget {
		c.OverlapTokens = c.TokenBudget / 2
	}
	return c
}

// Chunker splits normalized document text into overlapping token-bounded
// chunks snapped to sentence boundaries. Chunking is deterministic: the
// same text and config always produce the same boundaries and ids.
type Chunker struct {
	cfg      Config
	splitter *regexp.Regexp
}

func New(cfg Config) *Chunker {
	return &Chunker{
		cfg:      cfg.withDefaults(),
		splitter: regexp.MustCompile(`[^。！？!?\n]+[。！？!?]*\n?`),
	}
}

type sentence struct {
	text   string
	tokens int
}

// Chunk walks the normalized text accumulating sentences until the token
// budget is reached, then starts the next chunk OverlapTokens before the
// previous chunk's end, snapped to the preceding sentence boundary. A lone
// sentence over the budget is hard-truncated and flagged oversized.
func (c *Chunker) Chunk(doc models.Document, normalized string) []models.Chunk {
	sentences := c.split(normalized)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []models.Chunk
	i := 0
	idx := 0
	for i < len(sentences) {
		tokens := 0
		oversized := false
		j := i
		for j < len(sentences) {
			t := sentences[j].tokens
			if tokens == 0 && t > c.cfg.TokenBudget {
				oversized = true
				j++
				break
			}
			if tokens+t > c.cfg.TokenBudget {
				break
			}
			tokens += t
			j++
		}

		var parts []string
		for _, s := range sentences[i:j] {
			parts = append(parts, s.text)
		}
		text := strings.TrimSpace(strings.Join(parts, ""))
		if oversized {
			text = truncateTokens(text, c.cfg.TokenBudget)
		}

		chunks = append(chunks, models.Chunk{
			ID:            models.ChunkID(doc.ID, idx),
			DocumentID:    doc.ID,
			Index:         idx,
			Text:          text,
			Oversized:     oversized,
			Title:         doc.Title,
			Jurisdiction:  doc.Jurisdiction,
			Asset:         doc.Asset,
			DocumentClass: doc.DocumentClass,
			SourceURL:     doc.SourceURL,
			EffectiveDate: doc.EffectiveDate,
		})
		idx++

		if j >= len(sentences) {
			break
		}

		// Back up from the chunk end until at least OverlapTokens are
		// covered, stopping at a sentence boundary.
		k := j
		acc := 0
		for k > i && acc < c.cfg.OverlapTokens {
			acc += sentences[k-1].tokens
			k--
		}
		if k <= i {
			k = i + 1
		}
		if k > j {
			k = j
		}
		i = k
	}
	return chunks
}

func (c *Chunker) split(text string) []sentence {
	raw := c.splitter.FindAllString(text, -1)
	out := make([]sentence, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, sentence{text: s, tokens: estimateTokens(s)})
	}
	return out
}

// estimateTokens approximates token counts for mixed CJK/Latin text: each
// CJK rune counts as one token, each run of Latin letters or digits as one.
func estimateTokens(s string) int {
	count := 0
	inWord := false
	for _, r := range s {
		switch {
		case isCJK(r):
			count++
			inWord = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if !inWord {
				count++
				inWord = true
			}
		default:
			inWord = false
		}
	}
	return count
}

// truncateTokens cuts text after approximately n tokens.
func truncateTokens(s string, n int) string {
	count := 0
	inWord := false
	for i, r := range s {
		switch {
		case isCJK(r):
			count++
			inWord = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if !inWord {
				count++
				inWord = true
			}
		default:
			inWord = false
		}
		if count > n {
			return s[:i]
		}
	}
	return s
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
