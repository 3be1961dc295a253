// Package health checks that the hand-off tool can reach its collaborators
// and reports which optional features are switched on.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"

	"github.com/alekspetrov/qa-handoff/internal/config"
)

// Status represents feature or dependency status
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
	StatusDisabled
)

// Check represents a health check result
type Check struct {
	Name    string
	Status  Status
	Message string
	Fix     string
}

// FeatureStatus represents a feature with its availability
type FeatureStatus struct {
	Name    string
	Enabled bool
	Status  Status
	Note    string
}

// HealthReport contains all health check results
type HealthReport struct {
	Connectivity []Check
	Features     []FeatureStatus
}

// Pinger is anything that can confirm its credentials work.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TokenSource acquires storage tokens. An empty token means unconfigured.
type TokenSource interface {
	AcquireToken(ctx context.Context) (string, error)
}

// Deps are the live collaborators probed by RunChecks. Nil fields are
// reported as not checked.
type Deps struct {
	Tracker Pinger
	Tokens  TokenSource
}

// RunChecks performs all health checks based on config
func RunChecks(ctx context.Context, cfg *config.Config, deps Deps) *HealthReport {
	return &HealthReport{
		Connectivity: []Check{
			checkTracker(ctx, deps.Tracker),
			checkStorage(ctx, cfg, deps.Tokens),
			checkJournal(cfg),
		},
		Features: checkFeatures(cfg),
	}
}

// Summary counts errors and warnings.
func (r *HealthReport) Summary() (errors, warnings int) {
	for _, c := range r.Connectivity {
		switch c.Status {
		case StatusError:
			errors++
		case StatusWarning:
			warnings++
		}
	}
	return errors, warnings
}

func checkTracker(ctx context.Context, tracker Pinger) Check {
	if tracker == nil {
		return Check{Name: "asana", Status: StatusError, Message: "not configured", Fix: "set asana.access_token and asana.workspace_id"}
	}
	if err := tracker.Ping(ctx); err != nil {
		return Check{Name: "asana", Status: StatusError, Message: err.Error(), Fix: "check asana.access_token and asana.workspace_id"}
	}
	return Check{Name: "asana", Status: StatusOK, Message: "reachable"}
}

func checkStorage(ctx context.Context, cfg *config.Config, tokens TokenSource) Check {
	switch cfg.Storage.Backend {
	case config.BackendNone:
		return Check{Name: "storage", Status: StatusDisabled, Message: "disabled, description links and attachments only"}
	case config.BackendS3:
		return Check{Name: "storage", Status: StatusOK, Message: "s3 at " + cfg.Storage.S3.Endpoint}
	}

	if tokens == nil {
		return Check{Name: "storage", Status: StatusWarning, Message: "graph token not checked"}
	}
	token, err := tokens.AcquireToken(ctx)
	switch {
	case err != nil:
		return Check{Name: "storage", Status: StatusError, Message: err.Error(), Fix: "check identity.tenant_id, client_id and client_secret"}
	case token == "":
		return Check{Name: "storage", Status: StatusWarning, Message: "no identity credentials, runs will use fallbacks", Fix: "set identity.tenant_id, client_id and client_secret"}
	}
	return Check{Name: "storage", Status: StatusOK, Message: "graph token acquired"}
}

func checkJournal(cfg *config.Config) Check {
	if cfg.Journal == nil || cfg.Journal.Path == "" {
		return Check{Name: "journal", Status: StatusDisabled, Message: "disabled"}
	}
	dir := filepath.Dir(cfg.Journal.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{Name: "journal", Status: StatusWarning, Message: err.Error(), Fix: "point journal.path at a writable directory"}
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return Check{Name: "journal", Status: StatusWarning, Message: "directory not writable", Fix: "point journal.path at a writable directory"}
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return Check{Name: "journal", Status: StatusOK, Message: cfg.Journal.Path}
}

// checkFeatures checks feature availability
func checkFeatures(cfg *config.Config) []FeatureStatus {
	features := []FeatureStatus{}

	draft := cfg.Handoff != nil && cfg.Handoff.Comment != nil && cfg.Handoff.Comment.IsDraft()
	features = append(features, FeatureStatus{
		Name:    "Draft mode",
		Enabled: draft,
		Status:  boolToStatus(draft),
	})

	mentions := 0
	if cfg.Handoff != nil {
		mentions = len(cfg.Handoff.Mentions)
	}
	features = append(features, FeatureStatus{
		Name:    "Mentions",
		Enabled: mentions > 0,
		Status:  boolToStatus(mentions > 0),
		Note:    fmt.Sprintf("%d reviewers mapped", mentions),
	})

	metricsOn := cfg.Metrics != nil && cfg.Metrics.Enabled
	features = append(features, FeatureStatus{
		Name:    "Metrics",
		Enabled: metricsOn,
		Status:  boolToStatus(metricsOn),
	})

	triggerOn := cfg.Trigger != nil && cfg.Trigger.Secret != ""
	triggerStatus := boolToStatus(triggerOn)
	note := ""
	if triggerOn && (cfg.Trigger.GitHub == nil || cfg.Trigger.GitHub.Token == "") {
		triggerStatus = StatusWarning
		note = "no github token"
	}
	features = append(features, FeatureStatus{
		Name:    "Trigger",
		Enabled: triggerOn,
		Status:  triggerStatus,
		Note:    note,
	})

	schedule := cfg.Asana != nil && cfg.Asana.Polling != nil && cfg.Asana.Polling.Schedule != ""
	features = append(features, FeatureStatus{
		Name:    "Cron watch",
		Enabled: schedule,
		Status:  boolToStatus(schedule),
	})

	return features
}

// boolToStatus converts bool to Status
func boolToStatus(enabled bool) Status {
	if enabled {
		return StatusOK
	}
	return StatusDisabled
}

// Symbol returns the symbol for a status
func (s Status) Symbol() string {
	switch s {
	case StatusOK:
		return "✓"
	case StatusWarning:
		return "○"
	case StatusError:
		return "✗"
	case StatusDisabled:
		return "·"
	default:
		return "?"
	}
}

// String returns the status name
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	case StatusError:
		return "error"
	case StatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

var statusColors = map[Status]lipgloss.Color{
	StatusOK:       "#7ec699", // sage green
	StatusWarning:  "#d4a054", // amber
	StatusError:    "#d48a8a", // dusty rose
	StatusDisabled: "#8b949e", // mid gray
}

// ColorSymbol returns the symbol rendered in the status color
func (s Status) ColorSymbol() string {
	color, ok := statusColors[s]
	if !ok {
		return s.Symbol()
	}
	return lipgloss.NewStyle().Foreground(color).Render(s.Symbol())
}
