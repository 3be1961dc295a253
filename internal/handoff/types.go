// Package handoff runs the QA hand-off pipeline for one work item: gate,
// folder resolution, artifact matching, link extraction, image collection,
// comment composition and submission.
package handoff

import (
	"context"
	"time"

	"github.com/alekspetrov/qa-handoff/internal/artifacts"
	"github.com/alekspetrov/qa-handoff/internal/comment"
	"github.com/alekspetrov/qa-handoff/internal/gate"
	"github.com/alekspetrov/qa-handoff/internal/links"
	"github.com/alekspetrov/qa-handoff/internal/sheets"
	"github.com/alekspetrov/qa-handoff/internal/storage"
	"github.com/alekspetrov/qa-handoff/internal/tracker"
)

// State is a step of the pipeline.
type State string

const (
	// StateStart is the initial state before the work item is read.
	StateStart State = "start"
	// StateGateCheck evaluates status and checkbox.
	StateGateCheck State = "gate_check"
	// StateGateFailed is terminal: the gate blocked the hand-off.
	StateGateFailed State = "gate_failed"
	// StateResolveFolder resolves the folder URL and lists it.
	StateResolveFolder State = "resolve_folder"
	// StateMatchArtifacts locates the subfolder and spreadsheet.
	StateMatchArtifacts State = "match_artifacts"
	// StateExtractLinks reads preview links from the spreadsheet or description.
	StateExtractLinks State = "extract_links"
	// StateCollectImages republishes images onto the work item.
	StateCollectImages State = "collect_images"
	// StateCompose builds the comment.
	StateCompose State = "compose"
	// StateSubmit is terminal: the comment was posted (or printed in a dry run).
	StateSubmit State = "submit"
)

// Outcome summarizes how a run ended.
type Outcome string

const (
	OutcomeSubmitted  Outcome = "submitted"
	OutcomeGateFailed Outcome = "gate_failed"
	OutcomeDryRun     Outcome = "dry_run"
	OutcomeFailed     Outcome = "failed"
)

// Source names where links or images came from.
type Source string

const (
	SourceNone        Source = "none"
	SourceSpreadsheet Source = "spreadsheet"
	SourceDescription Source = "description"
	SourceStorage     Source = "storage"
	SourceAttachments Source = "attachments"
)

// Tracker is the work-item tracker the pipeline reads from and writes to.
type Tracker interface {
	GetItem(ctx context.Context, id string) (*tracker.WorkItem, error)
	PostComment(ctx context.Context, id string, c comment.Comment, notify bool) error
	UploadAttachment(ctx context.Context, id, name string, data []byte) (string, error)
}

// SheetReader parses spreadsheet bytes into sheets.
type SheetReader interface {
	Parse(data []byte) ([]sheets.Sheet, error)
}

// RunObserver is told about every finished run.
type RunObserver interface {
	ObserveRun(ctx context.Context, r *Result)
}

// Config holds every tunable of the pipeline.
type Config struct {
	Gate           *gate.Config      `yaml:"gate"`
	Artifacts      *artifacts.Config `yaml:"artifacts"`
	Comment        *comment.Config   `yaml:"comment"`
	PreviewPattern string            `yaml:"preview_pattern"`
	FolderURLField string            `yaml:"folder_url_field"`
	MentionsField  string            `yaml:"mentions_field"`
	// Mentions maps reviewer labels found in MentionsField to tracker user IDs.
	Mentions map[string]string `yaml:"mentions"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() *Config {
	return &Config{
		Gate:           gate.DefaultConfig(),
		Artifacts:      artifacts.DefaultConfig(),
		Comment:        comment.DefaultConfig(),
		PreviewPattern: links.DefaultPreviewPattern,
		FolderURLField: "QA Doc",
		MentionsField:  "QA Reviewers",
		Mentions:       map[string]string{},
	}
}

// Result describes one run.
type Result struct {
	RunID   string
	ItemID  string
	Title   string
	State   State
	Outcome Outcome

	Decision gate.Decision

	Subfolder       *storage.Entry
	Spreadsheet     *storage.Entry
	SpreadsheetTier artifacts.Tier

	PreviewLinks []string
	LinkSource   Source
	Images       []comment.Image
	ImageSource  Source
	ImageErrors  int

	// Degraded is set when storage could not be used and fallbacks applied.
	Degraded bool
	Draft    bool
	DryRun   bool

	Comment comment.Comment
	Notify  bool

	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Duration returns how long the run took.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
