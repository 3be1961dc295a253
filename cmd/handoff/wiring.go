package main

import (
	"fmt"
	"log/slog"

	"github.com/alekspetrov/qa-handoff/internal/adapters/asana"
	"github.com/alekspetrov/qa-handoff/internal/config"
	"github.com/alekspetrov/qa-handoff/internal/handoff"
	"github.com/alekspetrov/qa-handoff/internal/identity"
	"github.com/alekspetrov/qa-handoff/internal/journal"
	"github.com/alekspetrov/qa-handoff/internal/logging"
	"github.com/alekspetrov/qa-handoff/internal/metrics"
	"github.com/alekspetrov/qa-handoff/internal/storage"
	"github.com/alekspetrov/qa-handoff/internal/storage/graph"
	"github.com/alekspetrov/qa-handoff/internal/storage/objstore"
)

// loadConfig reads, validates and applies logging settings.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logging.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return cfg, nil
}

// app holds the long-lived collaborators built from one config.
type app struct {
	cfg     *config.Config
	client  *asana.Client
	tracker *asana.Tracker
	backend storage.Backend
	metrics *metrics.Metrics
	journal *journal.Store
}

func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := asana.NewClientWithBaseURL(cfg.Asana.BaseURL, cfg.Asana.AccessToken, cfg.Asana.WorkspaceID)
	a := &app{
		cfg:     cfg,
		client:  client,
		tracker: asana.NewTracker(client, cfg.Asana),
	}

	backend, err := buildBackend(cfg)
	if err != nil {
		return nil, err
	}
	a.backend = backend

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		a.metrics = metrics.New(cfg.Metrics.Namespace)
	}

	if cfg.Journal != nil && cfg.Journal.Path != "" {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			// The journal never affects a run; carry on without it.
			logging.WithComponent("cli").Warn("Journal unavailable",
				slog.String("path", cfg.Journal.Path),
				slog.Any("error", err))
		} else {
			a.journal = store
		}
	}

	return a, nil
}

// buildBackend returns nil when storage is disabled.
func buildBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendS3:
		c, err := objstore.NewClient(cfg.Storage.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create object store backend: %w", err)
		}
		return c, nil
	default:
		var opts []graph.Option
		if cfg.Storage.Graph != nil && cfg.Storage.Graph.BaseURL != "" {
			opts = append(opts, graph.WithBaseURL(cfg.Storage.Graph.BaseURL))
		}
		return graph.NewClient(identity.NewProvider(cfg.Identity, nil), opts...), nil
	}
}

func (a *app) pipeline(opts ...handoff.Option) (*handoff.Pipeline, error) {
	if a.metrics != nil {
		opts = append(opts, handoff.WithObserver(a.metrics))
	}
	if a.journal != nil {
		opts = append(opts, handoff.WithObserver(a.journal))
	}
	return handoff.New(a.cfg.Handoff, a.tracker, a.backend, opts...)
}

func (a *app) Close() {
	if a.journal != nil {
		_ = a.journal.Close()
	}
}
