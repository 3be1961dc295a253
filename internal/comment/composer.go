// Package comment assembles the hand-off status comment posted to a task.
package comment

import (
	"fmt"
	"strings"

	"github.com/alekspetrov/qa-handoff/internal/gate"
)

// Mode selects draft or final composition.
type Mode string

const (
	ModeDraft Mode = "draft"
	ModeFinal Mode = "final"
)

// Config holds comment wording and mode toggles.
type Config struct {
	Mode            Mode   `yaml:"mode"`
	DraftBanner     string `yaml:"draft_banner"`
	Notify          bool   `yaml:"notify"`
	IncludeMentions bool   `yaml:"include_mentions"`
	NoLinks         string `yaml:"no_links"`
	NoImages        string `yaml:"no_images"`
}

// DefaultConfig returns the default wording.
func DefaultConfig() *Config {
	return &Config{
		Mode:            ModeFinal,
		DraftBanner:     "🚧 DRAFT: QA hand-off preview. Reviewers have not been notified.",
		Notify:          true,
		IncludeMentions: true,
		NoLinks:         "No preview links found",
		NoImages:        "No QA images found",
	}
}

// IsDraft reports whether draft mode is selected.
func (c *Config) IsDraft() bool {
	return c.Mode == ModeDraft
}

// Image is an image already published to the work item.
type Image struct {
	Name string
	URL  string
}

// Input is everything the composer needs.
type Input struct {
	TaskTitle       string
	PreviewLinks    []string
	Images          []Image
	Mentions        []string
	IncludeMentions bool
	IsDraft         bool
}

// Comment is a composed, write-once message.
type Comment struct {
	Banner   string
	Mentions []string
	Body     []string
}

// Lines returns the comment as ordered text lines: banner, mention line,
// then body.
func (c Comment) Lines() []string {
	var lines []string
	if c.Banner != "" {
		lines = append(lines, c.Banner)
	}
	if len(c.Mentions) > 0 {
		tokens := make([]string, len(c.Mentions))
		for i, m := range c.Mentions {
			tokens[i] = "@" + m
		}
		lines = append(lines, strings.Join(tokens, " "))
	}
	return append(lines, c.Body...)
}

// String joins Lines with newlines.
func (c Comment) String() string {
	return strings.Join(c.Lines(), "\n")
}

// Composer builds comments from resolved hand-off data.
type Composer struct {
	cfg *Config
}

// NewComposer creates a composer.
func NewComposer(cfg *Config) *Composer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Composer{cfg: cfg}
}

// Compose builds the hand-off comment. Output depends only on in: there
// are no timestamps. Draft comments never carry mentions.
func (c *Composer) Compose(in Input) Comment {
	var out Comment
	if in.IsDraft {
		out.Banner = c.cfg.DraftBanner
	}
	if in.IncludeMentions && !in.IsDraft && len(in.Mentions) > 0 {
		out.Mentions = append([]string(nil), in.Mentions...)
	}

	out.Body = append(out.Body, fmt.Sprintf("QA hand-off: %s", in.TaskTitle), "")

	out.Body = append(out.Body, "Preview links:")
	if len(in.PreviewLinks) == 0 {
		out.Body = append(out.Body, c.cfg.NoLinks)
	}
	for _, link := range in.PreviewLinks {
		out.Body = append(out.Body, "• "+link)
	}

	out.Body = append(out.Body, "", "QA images:")
	if len(in.Images) == 0 {
		out.Body = append(out.Body, c.cfg.NoImages)
	}
	for _, img := range in.Images {
		out.Body = append(out.Body, fmt.Sprintf("• %s: %s", img.Name, img.URL))
	}
	return out
}

// GateFailure builds the notice posted when the gate blocks a hand-off.
func (c *Composer) GateFailure(title, checkboxField string, d gate.Decision) Comment {
	box := "unchecked"
	if d.CheckboxObserved {
		box = "checked"
	}
	return Comment{
		Body: []string{
			fmt.Sprintf("⛔ QA hand-off blocked: %s", title),
			fmt.Sprintf("Required status: %s", d.RequiredStatus),
			fmt.Sprintf("Current status: %s", d.StatusObserved),
			fmt.Sprintf("%s: %s", checkboxField, box),
		},
	}
}
