package asana

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alekspetrov/qa-handoff/internal/logging"
)

// TaskHandler runs the hand-off for one task. passed=false with a nil error
// means the gate refused it; the poller retries it after the task changes.
type TaskHandler func(ctx context.Context, taskGID string) (passed bool, err error)

// Poll results recorded per task.
const (
	ResultSkipped    = "skipped"
	ResultTagged     = "tagged"
	ResultDone       = "done"
	ResultFailed     = "failed"
	ResultGateFailed = "gate_failed"
)

// ProcessedStore persists which tasks have been handled across restarts.
type ProcessedStore interface {
	MarkProcessed(taskGID, result string) error
	LoadProcessed() (map[string]bool, error)
}

// Poller polls Asana for tasks carrying the hand-off tag
type Poller struct {
	client    *Client
	config    *Config
	interval  time.Duration
	processed map[string]bool
	gated     map[string]time.Time // gate failures, by modified_at when checked
	mu        sync.RWMutex
	onTask    TaskHandler
	logger    *slog.Logger
	store     ProcessedStore

	handoffTagGID    string
	inProgressTagGID string
	doneTagGID       string
	failedTagGID     string
}

// PollerOption configures a Poller
type PollerOption func(*Poller)

// WithOnTask sets the handler for new tasks
func WithOnTask(fn TaskHandler) PollerOption {
	return func(p *Poller) {
		p.onTask = fn
	}
}

// WithProcessedStore persists processed tasks so a restart does not
// hand them off twice.
func WithProcessedStore(store ProcessedStore) PollerOption {
	return func(p *Poller) {
		p.store = store
	}
}

// NewPoller creates a new Asana task poller
func NewPoller(client *Client, config *Config, interval time.Duration, opts ...PollerOption) *Poller {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Poller{
		client:    client,
		config:    config,
		interval:  interval,
		processed: make(map[string]bool),
		gated:     make(map[string]time.Time),
		logger:    logging.WithComponent("asana-poller"),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.store != nil {
		loaded, err := p.store.LoadProcessed()
		if err != nil {
			p.logger.Warn("Failed to load processed tasks from store", slog.Any("error", err))
		}
		for gid := range loaded {
			p.processed[gid] = true
		}
	}

	return p
}

// Status tag names derived from the hand-off tag.
func (p *Poller) inProgressTag() string { return p.config.HandoffTag + "-in-progress" }
func (p *Poller) doneTag() string       { return p.config.HandoffTag + "-done" }
func (p *Poller) failedTag() string     { return p.config.HandoffTag + "-failed" }

// Init resolves the tag GIDs. It must be called before Poll.
func (p *Poller) Init(ctx context.Context) error {
	handoffTag, err := p.client.FindTagByName(ctx, p.config.HandoffTag)
	if err != nil {
		return fmt.Errorf("hand-off tag lookup: %w", err)
	}
	if handoffTag == nil {
		return fmt.Errorf("hand-off tag %q not found in workspace", p.config.HandoffTag)
	}
	p.handoffTagGID = handoffTag.GID

	// Status tags are optional.
	if tag, _ := p.client.FindTagByName(ctx, p.inProgressTag()); tag != nil {
		p.inProgressTagGID = tag.GID
	}
	if tag, _ := p.client.FindTagByName(ctx, p.doneTag()); tag != nil {
		p.doneTagGID = tag.GID
	}
	if tag, _ := p.client.FindTagByName(ctx, p.failedTag()); tag != nil {
		p.failedTagGID = tag.GID
	}

	return nil
}

// Start resolves tags and polls on the configured interval until ctx is
// cancelled.
func (p *Poller) Start(ctx context.Context) error {
	if err := p.Init(ctx); err != nil {
		return fmt.Errorf("failed to cache tag GIDs: %w", err)
	}

	p.logger.Info("Starting Asana poller",
		slog.String("workspace", p.client.workspaceID),
		slog.String("tag", p.config.HandoffTag),
		slog.Duration("interval", p.interval),
	)

	p.Poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Asana poller stopped")
			return nil
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one polling pass. Tasks are handled oldest first, one at a time.
func (p *Poller) Poll(ctx context.Context) {
	tasks, err := p.client.GetActiveTasksByTag(ctx, p.handoffTagGID)
	if err != nil {
		p.logger.Warn("Failed to fetch tasks", slog.Any("error", err))
		return
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	for _, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		if p.IsProcessed(task.GID) || p.unchangedSinceGate(&task) {
			continue
		}
		if p.hasStatusTag(&task) {
			p.markProcessed(task.GID, ResultTagged)
			continue
		}

		p.logger.Info("Found tagged task",
			slog.String("gid", task.GID),
			slog.String("name", task.Name),
		)
		result := p.process(ctx, task.GID)
		if result == ResultGateFailed {
			p.logger.Info("Task not ready for QA, will retry once it changes",
				slog.String("gid", task.GID))
			p.mu.Lock()
			p.gated[task.GID] = task.ModifiedAt
			p.mu.Unlock()
			continue
		}
		p.markProcessed(task.GID, result)
	}
}

// unchangedSinceGate reports whether the task failed the gate and has not
// been modified since. Without a modified_at the task is retried every pass.
func (p *Poller) unchangedSinceGate(task *Task) bool {
	p.mu.RLock()
	checked, ok := p.gated[task.GID]
	p.mu.RUnlock()
	if !ok || task.ModifiedAt.IsZero() {
		return false
	}
	return !task.ModifiedAt.After(checked)
}

// process runs the handler and returns a short result label.
func (p *Poller) process(ctx context.Context, gid string) string {
	if p.onTask == nil {
		return ResultSkipped
	}

	p.tag(ctx, gid, p.inProgressTagGID, true)
	passed, err := p.onTask(ctx, gid)
	p.tag(ctx, gid, p.inProgressTagGID, false)

	switch {
	case err != nil:
		p.logger.Error("Failed to process task",
			slog.String("gid", gid),
			slog.Any("error", err),
		)
		p.tag(ctx, gid, p.failedTagGID, true)
		return ResultFailed
	case passed:
		p.tag(ctx, gid, p.doneTagGID, true)
		return ResultDone
	}
	return ResultGateFailed
}

// tag adds or removes a status tag. Tagging failures are logged only.
func (p *Poller) tag(ctx context.Context, taskGID, tagGID string, add bool) {
	if tagGID == "" {
		return
	}
	var err error
	if add {
		err = p.client.AddTag(ctx, taskGID, tagGID)
	} else {
		err = p.client.RemoveTag(ctx, taskGID, tagGID)
	}
	if err != nil {
		p.logger.Warn("Failed to update status tag",
			slog.String("gid", taskGID),
			slog.String("tag", tagGID),
			slog.Bool("add", add),
			slog.Any("error", err))
	}
}

func (p *Poller) hasStatusTag(task *Task) bool {
	for _, tag := range task.Tags {
		switch tag.Name {
		case p.inProgressTag(), p.doneTag(), p.failedTag():
			return true
		}
	}
	return false
}

func (p *Poller) markProcessed(gid, result string) {
	p.mu.Lock()
	p.processed[gid] = true
	delete(p.gated, gid)
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.MarkProcessed(gid, result); err != nil {
			p.logger.Warn("Failed to persist processed task", slog.String("gid", gid), slog.Any("error", err))
		}
	}
}

// IsProcessed checks if a task has been processed
func (p *Poller) IsProcessed(gid string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.processed[gid]
}

// ProcessedCount returns the number of processed tasks
func (p *Poller) ProcessedCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.processed)
}
