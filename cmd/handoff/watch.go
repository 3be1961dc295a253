package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/alekspetrov/qa-handoff/internal/adapters/asana"
	"github.com/alekspetrov/qa-handoff/internal/handoff"
	"github.com/alekspetrov/qa-handoff/internal/logging"
)

func newWatchCmd(configPath *string) *cobra.Command {
	var (
		schedule string
		interval time.Duration
		draft    bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll Asana for tagged tasks and hand them off",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var opts []handoff.Option
			if draft {
				opts = append(opts, handoff.WithDraft(true))
			}
			p, err := a.pipeline(opts...)
			if err != nil {
				return err
			}

			polling := cfg.Asana.Polling
			if polling == nil {
				polling = &asana.PollingConfig{}
			}
			if schedule == "" {
				schedule = polling.Schedule
			}
			if interval == 0 {
				interval = polling.Interval
			}
			if interval <= 0 {
				interval = 2 * time.Minute
			}

			pollerOpts := []asana.PollerOption{asana.WithOnTask(taskHandler(p))}
			if a.journal != nil {
				pollerOpts = append(pollerOpts, asana.WithProcessedStore(a.journal))
			}
			poller := asana.NewPoller(a.client, cfg.Asana, interval, pollerOpts...)
			if n := poller.ProcessedCount(); n > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Skipping %d tasks handled in earlier runs\n", n)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if schedule == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Watching tag %q every %s\n", cfg.Asana.HandoffTag, interval)
				return poller.Start(ctx)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching tag %q on schedule %q\n", cfg.Asana.HandoffTag, schedule)
			return watchOnSchedule(ctx, poller, schedule)
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron schedule for polling (overrides the interval)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Polling interval (default from config)")
	cmd.Flags().BoolVar(&draft, "draft", false, "Post draft comments without notifying reviewers")

	return cmd
}

// taskHandler adapts the pipeline to the poller. A gate failure is handled,
// not an error.
func taskHandler(p *handoff.Pipeline) asana.TaskHandler {
	return func(ctx context.Context, taskGID string) (bool, error) {
		result, err := p.Run(ctx, taskGID)
		if err != nil {
			return false, err
		}
		return result.Outcome == handoff.OutcomeSubmitted, nil
	}
}

// watchOnSchedule polls on a cron schedule until ctx is cancelled.
func watchOnSchedule(ctx context.Context, poller *asana.Poller, schedule string) error {
	if err := poller.Init(ctx); err != nil {
		return fmt.Errorf("failed to cache tag GIDs: %w", err)
	}

	logger := logging.WithComponent("watch")
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	entryID, err := c.AddFunc(schedule, func() { poller.Poll(ctx) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	c.Start()
	logger.Info("Scheduled polling started",
		slog.String("schedule", schedule),
		slog.Time("next_run", c.Entry(entryID).Next))

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("Scheduled polling stopped")
	return nil
}
