// Package artifacts locates the QA spreadsheet, subfolder and images for a
// task inside a folder listing.
//
// Both the subfolder and the spreadsheet lookups use the same tiers, tried
// in order across all candidates before moving to the next tier:
//
//  1. exact: normalized name (without extension for files) equals the title
//  2. prefix: normalized name starts with the title plus a space
//  3. fallback: folders containing the title; spreadsheets whose name
//     contains the preview keyword
//  4. last resort (spreadsheets only): the first spreadsheet in the listing
//
// Within a tier the earliest entry in listing order wins.
package artifacts

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/alekspetrov/qa-handoff/internal/storage"
	"github.com/alekspetrov/qa-handoff/internal/textnorm"
)

// Tier records which rule selected a match.
type Tier int

const (
	TierNone Tier = iota
	TierExact
	TierPrefix
	TierFallback
	TierLastResort
)

// String returns the tier name used in logs.
func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierPrefix:
		return "prefix"
	case TierFallback:
		return "fallback"
	case TierLastResort:
		return "last_resort"
	default:
		return "none"
	}
}

// Config holds the type filters used by the matcher.
type Config struct {
	SpreadsheetExtensions []string `yaml:"spreadsheet_extensions"`
	ImagePattern          string   `yaml:"image_pattern"`
	PreviewKeyword        string   `yaml:"preview_keyword"`
}

// DefaultConfig returns the default type filters.
func DefaultConfig() *Config {
	return &Config{
		SpreadsheetExtensions: []string{".xlsx", ".xlsm", ".csv"},
		ImagePattern:          `(?i)\.(png|jpe?g|gif|webp|bmp|heic|tiff?)$`,
		PreviewKeyword:        "preview",
	}
}

// Match is the outcome of a lookup.
type Match struct {
	Entry storage.Entry
	Tier  Tier
}

// Matcher applies the tiered lookup to folder listings.
type Matcher struct {
	extensions []string
	image      *regexp.Regexp
	keyword    string
}

// NewMatcher validates cfg and builds a matcher.
func NewMatcher(cfg *Config) (*Matcher, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	image, err := regexp.Compile(cfg.ImagePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid image pattern: %w", err)
	}
	exts := make([]string, 0, len(cfg.SpreadsheetExtensions))
	for _, ext := range cfg.SpreadsheetExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	return &Matcher{
		extensions: exts,
		image:      image,
		keyword:    strings.ToLower(cfg.PreviewKeyword),
	}, nil
}

// IsSpreadsheet reports whether the entry is a file with a spreadsheet extension.
func (m *Matcher) IsSpreadsheet(e storage.Entry) bool {
	if e.IsFolder {
		return false
	}
	ext := strings.ToLower(e.Ext())
	for _, want := range m.extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// IsImage reports whether the entry is a file whose name matches the image
// pattern or whose mime type is image/*.
func (m *Matcher) IsImage(e storage.Entry) bool {
	if e.IsFolder {
		return false
	}
	return m.image.MatchString(e.Name) || strings.HasPrefix(strings.ToLower(e.MimeType), "image/")
}

// Subfolder finds the folder that best matches title.
func (m *Matcher) Subfolder(entries []storage.Entry, title string) (Match, bool) {
	want := textnorm.Name(title)
	if want == "" {
		return Match{}, false
	}

	var folders []storage.Entry
	for _, e := range entries {
		if e.IsFolder {
			folders = append(folders, e)
		}
	}

	tiers := []struct {
		tier Tier
		ok   func(name string) bool
	}{
		{TierExact, func(name string) bool { return name == want }},
		{TierPrefix, func(name string) bool { return strings.HasPrefix(name, want+" ") }},
		{TierFallback, func(name string) bool { return strings.Contains(name, want) }},
	}
	for _, t := range tiers {
		for _, f := range folders {
			if t.ok(textnorm.Name(f.Name)) {
				return Match{Entry: f, Tier: t.tier}, true
			}
		}
	}
	return Match{}, false
}

// Spreadsheet finds the spreadsheet that best matches title.
func (m *Matcher) Spreadsheet(entries []storage.Entry, title string) (Match, bool) {
	var candidates []storage.Entry
	for _, e := range entries {
		if m.IsSpreadsheet(e) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return Match{}, false
	}

	want := textnorm.Name(title)
	if want != "" {
		for _, c := range candidates {
			if stem(c.Name) == want {
				return Match{Entry: c, Tier: TierExact}, true
			}
		}
		for _, c := range candidates {
			if strings.HasPrefix(stem(c.Name), want+" ") {
				return Match{Entry: c, Tier: TierPrefix}, true
			}
		}
	}
	if m.keyword != "" {
		for _, c := range candidates {
			if strings.Contains(strings.ToLower(c.Name), m.keyword) {
				return Match{Entry: c, Tier: TierFallback}, true
			}
		}
	}
	return Match{Entry: candidates[0], Tier: TierLastResort}, true
}

// Images returns every image entry, in listing order.
func (m *Matcher) Images(entries []storage.Entry) []storage.Entry {
	var out []storage.Entry
	for _, e := range entries {
		if m.IsImage(e) {
			out = append(out, e)
		}
	}
	return out
}

// stem normalizes a file name with its extension removed.
func stem(name string) string {
	return textnorm.Name(textnorm.StripExtension(name))
}
