package domain

import (
	"regexp"
	"strconv"
)

var numberPattern = regexp.MustCompile(`\d+(\.\d+)?`)

// LeadingNumber extracts the first number in s ("Vol 3" -> 3, "12.5" -> 12.5).
// It returns 0 when s has no digits.
func LeadingNumber(s string) float64 {
	match := numberPattern.FindString(s)
	if match == "" {
		return 0
	}
	n, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return n
}

// ChapterRange selects chapters by number; a nil bound is open
type ChapterRange struct {
	From *float64
	To   *float64
}

// Contains reports whether the chapter number falls inside the range
func (r ChapterRange) Contains(number string) bool {
	if r.From == nil && r.To == nil {
		return true
	}
	if !numberPattern.MatchString(number) {
		return false
	}
	n := LeadingNumber(number)
	if r.From != nil && n < *r.From {
		return false
	}
	if r.To != nil && n > *r.To {
		return false
	}
	return true
}

// SelectChapters returns the refs of the chapters inside r, dropping
// repeated chapter numbers so one upload per chapter is downloaded
func SelectChapters(chapters []Chapter, r ChapterRange) []ChapterRef {
	seen := make(map[string]bool)
	refs := make([]ChapterRef, 0, len(chapters))
	for _, ch := range chapters {
		if !r.Contains(ch.Number) {
			continue
		}
		if ch.Number != "" && seen[ch.Number] {
			continue
		}
		seen[ch.Number] = true
		refs = append(refs, ch.Ref())
	}
	return refs
}
