package normalizer

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// ErrInvalidEncoding is returned when the input is not valid UTF-8. It is
// the only failure mode of normalization; everything else degrades to
// best-effort cleanup.
var ErrInvalidEncoding = errors.New("text is not valid UTF-8")

var (
	spaceRun   = regexp.MustCompile(`[ \t\x{00A0}\x{3000}]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)

	// Common boilerplate lines left behind by PDF extraction: page numbers,
	// "Page N of M", CJK page markers, separator rules.
	boilerplateLine = regexp.MustCompile(`^(?:` +
		`[-—_=\s]*\d+[-—_=\s]*` + // bare or dashed page numbers
		`|(?i:page)\s*\d+(?:\s*(?i:of)\s*\d+)?` +
		`|第\s*\d+\s*页(?:\s*共\s*\d+\s*页)?` +
		`|[-—_=*]{3,}` +
		`)$`)
)

// cjkLangs are the languages for which full-width/half-width folding applies.
var cjkLangs = map[string]bool{"zh": true, "ja": true, "ko": true}

// Normalize cleans raw extracted text for chunking or querying. For CJK
// languages full-width Latin letters, digits and punctuation are folded to
// their half-width forms. Pure function, no side effects.
func Normalize(raw string, lang string) (string, error) {
	if !utf8.ValidString(raw) {
		return "", ErrInvalidEncoding
	}

	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	if cjkLangs[baseLang(lang)] {
		text = width.Fold.String(text)
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = spaceRun.ReplaceAllString(line, " ")
		line = strings.TrimSpace(line)
		if boilerplateLine.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	text = strings.Join(kept, "\n")
	text = newlineRun.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text), nil
}

// baseLang reduces a BCP 47 tag like "zh-CN" to its primary subtag.
func baseLang(lang string) string {
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return strings.ToLower(lang)
}
