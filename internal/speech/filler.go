package speech

import (
	"regexp"
	"strings"
)

// fillerPattern pairs a canonical vocabulary entry with its compiled
// word-boundary matcher. Multi-word entries tolerate any run of whitespace
// between words.
type fillerPattern struct {
	canonical string
	re        *regexp.Regexp
}

// FillerDetector scans finalized utterance text for filler words. Matches
// are reported by canonical pattern, not surface form, so "Um" and "um,"
// both count as "um".
type FillerDetector struct {
	patterns []fillerPattern
}

// NewFillerDetector compiles the given filler vocabulary
func NewFillerDetector(vocabulary []string) *FillerDetector {
	d := &FillerDetector{}
	for _, entry := range vocabulary {
		canonical := strings.ToLower(strings.TrimSpace(entry))
		if canonical == "" {
			continue
		}

		words := strings.Fields(canonical)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		expr := `(?i)\b` + strings.Join(words, `\s+`) + `\b`

		re, err := regexp.Compile(expr)
		if err != nil {
			continue
		}
		d.patterns = append(d.patterns, fillerPattern{canonical: canonical, re: re})
	}
	return d
}

// Detect returns the canonical filler for each occurrence found in text,
// in vocabulary order. The same position can match at most one occurrence
// per pattern.
func (d *FillerDetector) Detect(text string) []string {
	var found []string
	for _, p := range d.patterns {
		for range p.re.FindAllStringIndex(text, -1) {
			found = append(found, p.canonical)
		}
	}
	return found
}

// VocabularySize returns the number of compiled patterns
func (d *FillerDetector) VocabularySize() int {
	return len(d.patterns)
}
