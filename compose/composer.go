package compose

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode"

	"reguquery-backend/models"
)

const (
	defaultMaxBullets        = 4
	defaultSpanFloor         = 20
	defaultExcerptRunes      = 120
	defaultSpansPerCandidate = 2
	minCJKRatio              = 0.3
)

// defaultStopwords covers common English function words plus a small set of
// Chinese function words. The list is policy, not behavior: callers can
// replace it wholesale through Config.
var defaultStopwords = []string{
	"a", "an", "and", "are", "be", "by", "do", "does", "for", "from", "how",
	"in", "is", "it", "of", "on", "or", "that", "the", "this", "to", "was",
	"what", "when", "where", "which", "who", "why", "with",
	"的", "了", "是", "在", "和", "与", "或", "及", "等", "吗", "呢", "什么", "哪些", "如何", "怎么", "需要", "要求",
}

// Config tunes quote selection and answer layout.
type Config struct {
	MaxBullets        int
	SpanFloor         int // minimum span length in runes
	ExcerptRunes      int // fallback excerpt length when no keyword span matches
	SpansPerCandidate int
	Stopwords         []string
}

func (c Config) withDefaults() Config {
	if c.MaxBullets <= 0 {
		c.MaxBullets = defaultMaxBullets
	}
	if c.SpanFloor <= 0 {
		c.SpanFloor = defaultSpanFloor
	}
	if c.ExcerptRunes <= 0 {
		c.ExcerptRunes = defaultExcerptRunes
	}
	if c.SpansPerCandidate <= 0 {
		c.SpansPerCandidate = defaultSpansPerCandidate
	}
	if c.Stopwords == nil {
		c.Stopwords = defaultStopwords
	}
	return c
}

// Composer builds the final answer from retrieved candidates. Every quoted
// span is a verbatim substring of a real chunk; the composer never invents
// or paraphrases text.
type Composer struct {
	cfg       Config
	stopwords map[string]bool
}

func New(cfg Config) *Composer {
	cfg = cfg.withDefaults()
	stop := make(map[string]bool, len(cfg.Stopwords))
	for _, w := range cfg.Stopwords {
		stop[strings.ToLower(w)] = true
	}
	return &Composer{cfg: cfg, stopwords: stop}
}

var (
	latinWord     = regexp.MustCompile(`[a-zA-Z0-9]+`)
	sentenceSplit = regexp.MustCompile(`[^。！？!?\n]+[。！？!?]*\n?`)
)

// Compose selects verbatim supporting spans from the candidates and formats
// them as quoted bullets with deduplicated citations.
func (c *Composer) Compose(question, lang string, candidates []models.Candidate) (string, []models.Citation) {
	keywords := c.extractKeywords(question)

	var bullets []string
	var citations []models.Citation
	seenURL := make(map[string]bool)

	for _, cand := range candidates {
		if len(bullets) >= c.cfg.MaxBullets {
			break
		}
		spans := c.selectSpans(cand.Chunk.Text, keywords)
		for _, span := range spans {
			if len(bullets) >= c.cfg.MaxBullets {
				break
			}
			bullets = append(bullets, formatBullet(span, cand.Chunk.Title))
		}
		if len(spans) > 0 && !seenURL[cand.Chunk.SourceURL] {
			seenURL[cand.Chunk.SourceURL] = true
			citations = append(citations, models.CitationFor(cand.Chunk))
		}
	}

	answer := strings.Join(bullets, "\n")
	if answer != "" {
		answer = answerLead(lang) + "\n" + answer
	}

	if isCJKLang(lang) && answer != "" {
		if ratio := cjkRatio(answer); ratio < minCJKRatio {
			log.Printf("Warning: composed answer has low CJK ratio %.2f for lang %s", ratio, lang)
		}
	}
	return answer, citations
}

// selectSpans returns up to SpansPerCandidate verbatim spans from the chunk
// text, preferring the earliest sentences containing a query keyword. A
// matching sentence shorter than the span floor is extended with the
// sentences that follow it. When nothing matches, the chunk's leading
// runes serve as a representative excerpt.
func (c *Composer) selectSpans(text string, keywords []string) []string {
	sentences := sentenceSplit.FindAllString(text, -1)
	var spans []string
	used := make([]bool, len(sentences))

	for i := 0; i < len(sentences) && len(spans) < c.cfg.SpansPerCandidate; i++ {
		if used[i] || !containsAny(sentences[i], keywords) {
			continue
		}
		span := strings.TrimSpace(sentences[i])
		used[i] = true
		for j := i + 1; len([]rune(span)) < c.cfg.SpanFloor && j < len(sentences); j++ {
			span += strings.TrimSpace(sentences[j])
			used[j] = true
		}
		if len([]rune(span)) < c.cfg.SpanFloor {
			continue
		}
		spans = append(spans, span)
	}

	if len(spans) == 0 && strings.TrimSpace(text) != "" {
		runes := []rune(strings.TrimSpace(text))
		if len(runes) > c.cfg.ExcerptRunes {
			runes = runes[:c.cfg.ExcerptRunes]
		}
		spans = append(spans, string(runes))
	}
	return spans
}

// extractKeywords pulls salient tokens from the question: lowercased words
// for Latin script, character bigrams for CJK runs, stopwords removed.
func (c *Composer) extractKeywords(question string) []string {
	var keywords []string
	seen := make(map[string]bool)
	add := func(k string) {
		if !c.stopwords[k] && !seen[k] {
			seen[k] = true
			keywords = append(keywords, k)
		}
	}

	for _, w := range latinWord.FindAllString(question, -1) {
		w = strings.ToLower(w)
		if len(w) >= 2 {
			add(w)
		}
	}

	for _, run := range cjkRuns(question) {
		if len(run) == 1 {
			add(string(run))
			continue
		}
		for i := 0; i+1 < len(run); i++ {
			add(string(run[i : i+2]))
		}
	}
	return keywords
}

func containsAny(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func formatBullet(span, title string) string {
	span = strings.TrimSpace(span)
	if title != "" {
		return fmt.Sprintf("- “%s”（%s）", span, title)
	}
	return fmt.Sprintf("- “%s”", span)
}

func answerLead(lang string) string {
	if isCJKLang(lang) {
		return "根据已收录的法规文件，以下为相关原文摘录："
	}
	return "Relevant excerpts from the indexed regulatory documents:"
}

// cjkRuns splits a string into maximal runs of CJK characters.
func cjkRuns(s string) [][]rune {
	var runs [][]rune
	var current []rune
	for _, r := range s {
		if isCJKRune(r) {
			current = append(current, r)
			continue
		}
		if len(current) > 0 {
			runs = append(runs, current)
			current = nil
		}
	}
	if len(current) > 0 {
		runs = append(runs, current)
	}
	return runs
}

func cjkRatio(s string) float64 {
	total, cjk := 0, 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if isCJKRune(r) {
			cjk++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(cjk) / float64(total)
}

func isCJKRune(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

func isCJKLang(lang string) bool {
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	switch strings.ToLower(lang) {
	case "zh", "ja", "ko":
		return true
	}
	return false
}
