// Package links extracts reviewer-facing preview links from spreadsheet
// content or free text.
package links

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/alekspetrov/qa-handoff/internal/sheets"
)

// DefaultPreviewPattern matches an http(s) URL carrying one of the preview
// query signatures: action=preview, or a 6+ digit convert_e / convert_v
// marker. It never crosses whitespace or a closing parenthesis.
const DefaultPreviewPattern = `https?://[^\s)]*?[?&](?:action=preview\b|convert_[ev]=\d{6,})[^\s)]*`

// URLPatternMatcher finds every candidate URL in a block of text.
type URLPatternMatcher interface {
	FindAll(text string) []string
}

// RegexpMatcher is a URLPatternMatcher backed by a regular expression.
type RegexpMatcher struct {
	re *regexp.Regexp
}

// NewRegexpMatcher compiles pattern into a matcher.
func NewRegexpMatcher(pattern string) (*RegexpMatcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid preview pattern: %w", err)
	}
	return &RegexpMatcher{re: re}, nil
}

// FindAll returns all non-overlapping matches in text, in order.
func (m *RegexpMatcher) FindAll(text string) []string {
	return m.re.FindAllString(text, -1)
}

// Extractor collects deduplicated preview links.
type Extractor struct {
	matcher URLPatternMatcher
}

// NewExtractor creates an extractor over the given matcher.
func NewExtractor(matcher URLPatternMatcher) *Extractor {
	return &Extractor{matcher: matcher}
}

// FromWorkbook scans every cell of every sheet. Cells are matched one at a
// time so a URL never spans two cells.
func (e *Extractor) FromWorkbook(workbook []sheets.Sheet) []string {
	set := newOrderedSet()
	for _, sheet := range workbook {
		for _, row := range sheet.Rows {
			for _, cell := range row {
				set.addAll(e.matcher.FindAll(sheets.CellString(cell)))
			}
		}
	}
	return set.items
}

// FromText scans a free-text block such as a task description.
func (e *Extractor) FromText(text string) []string {
	set := newOrderedSet()
	set.addAll(e.matcher.FindAll(text))
	return set.items
}

// orderedSet keeps first-seen order and drops exact duplicates.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{}), items: []string{}}
}

func (s *orderedSet) addAll(values []string) {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}
