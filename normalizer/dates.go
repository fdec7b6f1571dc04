package normalizer

import (
	"regexp"
	"strconv"
	"time"
)

// Date patterns recognized with high confidence: full year-month-day forms
// only. Partial dates (year-month, bare years) are deliberately ignored —
// the extractor never guesses.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`),
	regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`),
	regexp.MustCompile(`(\d{4})/(\d{1,2})/(\d{1,2})`),
	regexp.MustCompile(`(\d{4})\.(\d{1,2})\.(\d{1,2})`),
}

// ExtractEffectiveDate returns the first calendar-valid full date found in
// the text, or nil when none is present.
func ExtractEffectiveDate(text string) *time.Time {
	bestIdx := -1
	var best time.Time
	for _, pat := range datePatterns {
		for _, loc := range pat.FindAllStringSubmatchIndex(text, -1) {
			year, _ := strconv.Atoi(text[loc[2]:loc[3]])
			month, _ := strconv.Atoi(text[loc[4]:loc[5]])
			day, _ := strconv.Atoi(text[loc[6]:loc[7]])
			d, ok := calendarDate(year, month, day)
			if !ok {
				continue
			}
			if bestIdx == -1 || loc[0] < bestIdx {
				bestIdx = loc[0]
				best = d
			}
			break
		}
	}
	if bestIdx == -1 {
		return nil
	}
	return &best
}

// calendarDate validates the components against the real calendar; 2023-02-30
// does not round-trip through time.Date and is rejected.
func calendarDate(year, month, day int) (time.Time, bool) {
	if year < 1900 || year > 2200 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}
