package handoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alekspetrov/qa-handoff/internal/artifacts"
	"github.com/alekspetrov/qa-handoff/internal/comment"
	"github.com/alekspetrov/qa-handoff/internal/gate"
	"github.com/alekspetrov/qa-handoff/internal/links"
	"github.com/alekspetrov/qa-handoff/internal/logging"
	"github.com/alekspetrov/qa-handoff/internal/sheets"
	"github.com/alekspetrov/qa-handoff/internal/storage"
	"github.com/alekspetrov/qa-handoff/internal/textnorm"
	"github.com/alekspetrov/qa-handoff/internal/tracker"
)

// dryRunURL stands in for an upload URL when nothing is uploaded.
const dryRunURL = "(dry run, not uploaded)"

// Pipeline runs hand-offs. It holds configuration and collaborators only;
// every Run starts from freshly fetched data.
type Pipeline struct {
	cfg       *Config
	tracker   Tracker
	backend   storage.Backend
	reader    SheetReader
	evaluator *gate.Evaluator
	matcher   *artifacts.Matcher
	extractor *links.Extractor
	composer  *comment.Composer
	mentions  map[string]string
	observers []RunObserver
	gateOpts  []gate.Option
	dryRun    bool
	draft     *bool
	now       func() time.Time
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithSheetReader replaces the spreadsheet reader.
func WithSheetReader(r SheetReader) Option {
	return func(p *Pipeline) {
		p.reader = r
	}
}

// WithObserver registers a run observer such as metrics or the journal.
func WithObserver(o RunObserver) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observers = append(p.observers, o)
		}
	}
}

// WithDryRun runs read-only: no uploads and no comments.
func WithDryRun(dryRun bool) Option {
	return func(p *Pipeline) {
		p.dryRun = dryRun
	}
}

// WithDraft overrides the configured comment mode.
func WithDraft(draft bool) Option {
	return func(p *Pipeline) {
		p.draft = &draft
	}
}

// WithGateOptions passes options to the gate evaluator.
func WithGateOptions(opts ...gate.Option) Option {
	return func(p *Pipeline) {
		p.gateOpts = append(p.gateOpts, opts...)
	}
}

// New validates cfg and builds a pipeline. backend may be nil when no
// storage is configured; runs then go straight to the fallbacks.
func New(cfg *Config, t Tracker, backend storage.Backend, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if t == nil {
		return nil, errors.New("tracker is required")
	}
	if cfg.Gate == nil || strings.TrimSpace(cfg.Gate.RequiredStatus) == "" {
		return nil, errors.New("gate.required_status is required")
	}
	if strings.TrimSpace(cfg.Gate.CheckboxField) == "" {
		return nil, errors.New("gate.checkbox_field is required")
	}

	matcher, err := artifacts.NewMatcher(cfg.Artifacts)
	if err != nil {
		return nil, err
	}
	pattern := cfg.PreviewPattern
	if pattern == "" {
		pattern = links.DefaultPreviewPattern
	}
	urlMatcher, err := links.NewRegexpMatcher(pattern)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:       cfg,
		tracker:   t,
		backend:   backend,
		reader:    sheets.NewReader(),
		matcher:   matcher,
		extractor: links.NewExtractor(urlMatcher),
		composer:  comment.NewComposer(cfg.Comment),
		mentions:  make(map[string]string, len(cfg.Mentions)),
		now:       time.Now,
	}
	for label, id := range cfg.Mentions {
		p.mentions[textnorm.Name(label)] = id
	}
	for _, opt := range opts {
		opt(p)
	}
	p.evaluator = gate.NewEvaluator(cfg.Gate, p.gateOpts...)
	return p, nil
}

func (p *Pipeline) isDraft() bool {
	if p.draft != nil {
		return *p.draft
	}
	return p.cfg.Comment != nil && p.cfg.Comment.IsDraft()
}

func (p *Pipeline) notify() bool {
	return !p.isDraft() && (p.cfg.Comment == nil || p.cfg.Comment.Notify)
}

// run carries the per-run state.
type run struct {
	*Result
	item   *tracker.WorkItem
	logger *slog.Logger
}

func (r *run) enter(s State) {
	r.State = s
	r.logger.Debug("Entering state", slog.String("state", string(s)))
}

// Run executes the pipeline for one work item. It returns an error only
// when the work item cannot be read or the final comment cannot be posted;
// a gate failure is a normal result.
func (p *Pipeline) Run(ctx context.Context, itemID string) (*Result, error) {
	r := &run{
		Result: &Result{
			RunID:     uuid.NewString(),
			ItemID:    itemID,
			State:     StateStart,
			Draft:     p.isDraft(),
			DryRun:    p.dryRun,
			StartedAt: p.now(),
		},
	}
	r.logger = logging.WithRun(r.RunID, itemID).With(slog.String("component", "handoff"))
	ctx = logging.ContextWithRun(ctx, r.RunID, itemID)

	err := p.execute(ctx, r)

	r.FinishedAt = p.now()
	if err != nil {
		r.Outcome = OutcomeFailed
		r.Err = err
		r.logger.Error("Hand-off failed",
			slog.String("state", string(r.State)),
			slog.Any("error", err))
	} else {
		r.logger.Info("Hand-off finished",
			slog.String("outcome", string(r.Outcome)),
			slog.Int("links", len(r.PreviewLinks)),
			slog.Int("images", len(r.Images)),
			slog.Bool("degraded", r.Degraded),
			slog.Duration("duration", r.Duration()))
	}
	for _, o := range p.observers {
		o.ObserveRun(ctx, r.Result)
	}
	return r.Result, err
}

func (p *Pipeline) execute(ctx context.Context, r *run) error {
	item, err := p.tracker.GetItem(ctx, r.ItemID)
	if err != nil {
		return fmt.Errorf("failed to read work item: %w", err)
	}
	r.item = item
	r.Title = item.Title

	r.enter(StateGateCheck)
	r.Decision = p.evaluator.Evaluate(ctx, p.observe(item), p.refetch(r.ItemID))
	if !r.Decision.Passed {
		p.gateFailed(ctx, r)
		return nil
	}

	r.enter(StateResolveFolder)
	entries, ok := p.resolveFolder(ctx, r)

	r.enter(StateMatchArtifacts)
	if ok {
		entries, ok = p.drillDown(ctx, r, entries)
	}
	if ok {
		if m, found := p.matcher.Spreadsheet(entries, item.Title); found {
			e := m.Entry
			r.Spreadsheet = &e
			r.SpreadsheetTier = m.Tier
			r.logger.Info("Spreadsheet matched",
				slog.String("name", e.Name),
				slog.String("tier", m.Tier.String()))
		} else {
			r.logger.Warn("No spreadsheet matched")
		}
	}

	r.enter(StateExtractLinks)
	p.extractLinks(ctx, r)

	r.enter(StateCollectImages)
	p.collectImages(ctx, r, entries, ok)

	r.enter(StateCompose)
	r.Notify = p.notify()
	r.Comment = p.composer.Compose(comment.Input{
		TaskTitle:       item.Title,
		PreviewLinks:    r.PreviewLinks,
		Images:          r.Images,
		Mentions:        p.resolveMentions(item),
		IncludeMentions: p.cfg.Comment == nil || p.cfg.Comment.IncludeMentions,
		IsDraft:         r.Draft,
	})

	r.enter(StateSubmit)
	if p.dryRun {
		r.Outcome = OutcomeDryRun
		return nil
	}
	if err := p.tracker.PostComment(ctx, r.ItemID, r.Comment, r.Notify); err != nil {
		return fmt.Errorf("failed to submit comment: %w", err)
	}
	r.Outcome = OutcomeSubmitted
	return nil
}

// observe reduces a work item to what the gate needs.
func (p *Pipeline) observe(item *tracker.WorkItem) gate.Observation {
	return gate.Observation{
		Status:  item.StatusLabel,
		Checked: item.FieldValue(p.cfg.Gate.CheckboxField).Checked(),
	}
}

func (p *Pipeline) refetch(itemID string) gate.Refetcher {
	return func(ctx context.Context) (gate.Observation, error) {
		item, err := p.tracker.GetItem(ctx, itemID)
		if err != nil {
			return gate.Observation{}, err
		}
		return p.observe(item), nil
	}
}

// gateFailed posts the failure notice. Posting errors are logged only.
func (p *Pipeline) gateFailed(ctx context.Context, r *run) {
	r.enter(StateGateFailed)
	r.Outcome = OutcomeGateFailed
	r.Notify = p.notify()
	r.Comment = p.composer.GateFailure(r.item.Title, p.cfg.Gate.CheckboxField, r.Decision)

	r.logger.Info("Gate blocked hand-off",
		slog.String("status", r.Decision.StatusObserved),
		slog.String("required", r.Decision.RequiredStatus),
		slog.Bool("checked", r.Decision.CheckboxObserved),
		slog.Bool("rechecked", r.Decision.Rechecked))

	if p.dryRun {
		return
	}
	if err := p.tracker.PostComment(ctx, r.ItemID, r.Comment, r.Notify); err != nil {
		r.logger.Warn("Failed to post gate failure comment", slog.Any("error", err))
	}
}

// resolveFolder lists the folder named by the folder URL field. ok=false
// means storage is not usable for this run.
func (p *Pipeline) resolveFolder(ctx context.Context, r *run) ([]storage.Entry, bool) {
	if p.backend == nil {
		r.degrade("no storage backend configured", nil)
		return nil, false
	}
	folderURL := strings.TrimSpace(r.item.FieldValue(p.cfg.FolderURLField).String())
	if folderURL == "" {
		r.degrade("folder URL field is empty", nil)
		return nil, false
	}

	ref, err := p.backend.Resolve(ctx, folderURL)
	if err != nil {
		r.degrade("failed to resolve folder", err)
		return nil, false
	}
	entries, err := p.backend.List(ctx, ref)
	if err != nil {
		r.degrade("failed to list folder", err)
		return nil, false
	}
	return entries, true
}

// drillDown descends into a matching subfolder, one level only.
func (p *Pipeline) drillDown(ctx context.Context, r *run, root []storage.Entry) ([]storage.Entry, bool) {
	m, found := p.matcher.Subfolder(root, r.item.Title)
	if !found {
		return root, true
	}
	sub := m.Entry
	r.Subfolder = &sub
	r.logger.Info("Subfolder matched",
		slog.String("name", sub.Name),
		slog.String("tier", m.Tier.String()))

	entries, err := p.backend.List(ctx, sub.Ref())
	if err != nil {
		r.degrade("failed to list subfolder", err)
		return nil, false
	}
	return entries, true
}

func (r *run) degrade(reason string, err error) {
	r.Degraded = true
	attrs := []any{slog.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	r.logger.Warn("Storage unavailable, using fallbacks", attrs...)
}

// extractLinks reads links from the matched spreadsheet and falls back to
// the description when that yields nothing.
func (p *Pipeline) extractLinks(ctx context.Context, r *run) {
	r.LinkSource = SourceNone
	if r.Spreadsheet != nil {
		found, err := p.spreadsheetLinks(ctx, *r.Spreadsheet)
		if err != nil {
			r.logger.Warn("Failed to read spreadsheet",
				slog.String("name", r.Spreadsheet.Name),
				slog.Any("error", err))
		}
		if len(found) > 0 {
			r.PreviewLinks = found
			r.LinkSource = SourceSpreadsheet
			return
		}
	}

	found := p.extractor.FromText(r.item.Description)
	if len(found) > 0 {
		r.PreviewLinks = found
		r.LinkSource = SourceDescription
		r.logger.Info("Using preview links from description", slog.Int("links", len(found)))
		return
	}
	r.PreviewLinks = nil
	r.logger.Warn("No preview links found")
}

func (p *Pipeline) spreadsheetLinks(ctx context.Context, e storage.Entry) ([]string, error) {
	data, err := p.backend.Download(ctx, e.Ref())
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	workbook, err := p.reader.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return p.extractor.FromWorkbook(workbook), nil
}

// collectImages republishes storage images onto the work item one at a
// time in listing order. A failing image is skipped. When storage yields
// no image, images already attached to the work item are used.
func (p *Pipeline) collectImages(ctx context.Context, r *run, entries []storage.Entry, storageOK bool) {
	r.ImageSource = SourceNone
	if storageOK {
		for _, e := range p.matcher.Images(entries) {
			img, err := p.republish(ctx, r, e)
			if err != nil {
				r.ImageErrors++
				r.logger.Warn("Skipping image",
					slog.String("name", e.Name),
					slog.Any("error", err))
				continue
			}
			r.Images = append(r.Images, img)
		}
		if len(r.Images) > 0 {
			r.ImageSource = SourceStorage
			return
		}
	}

	for _, a := range r.item.Attachments {
		if !p.matcher.IsImage(storage.Entry{Name: a.Name, MimeType: a.MimeType}) || a.URL == "" {
			continue
		}
		r.Images = append(r.Images, comment.Image{Name: a.Name, URL: a.URL})
	}
	if len(r.Images) > 0 {
		r.ImageSource = SourceAttachments
		r.logger.Info("Using images attached to the work item", slog.Int("images", len(r.Images)))
	}
}

func (p *Pipeline) republish(ctx context.Context, r *run, e storage.Entry) (comment.Image, error) {
	if p.dryRun {
		return comment.Image{Name: e.Name, URL: dryRunURL}, nil
	}
	data, err := p.backend.Download(ctx, e.Ref())
	if err != nil {
		return comment.Image{}, fmt.Errorf("download: %w", err)
	}
	url, err := p.tracker.UploadAttachment(ctx, r.ItemID, e.Name, data)
	if err != nil {
		return comment.Image{}, fmt.Errorf("upload: %w", err)
	}
	return comment.Image{Name: e.Name, URL: url}, nil
}

// resolveMentions maps the labels in the mentions field to user IDs.
// Unknown labels are passed through unchanged, so the field may also hold
// IDs directly.
func (p *Pipeline) resolveMentions(item *tracker.WorkItem) []string {
	raw := item.FieldValue(p.cfg.MentionsField).String()
	if raw == "" {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		id, ok := p.mentions[textnorm.Name(token)]
		if !ok {
			id = token
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
