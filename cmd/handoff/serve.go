package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/qa-handoff/internal/adapters/asana"
	"github.com/alekspetrov/qa-handoff/internal/config"
	"github.com/alekspetrov/qa-handoff/internal/logging"
	"github.com/alekspetrov/qa-handoff/internal/metrics"
	"github.com/alekspetrov/qa-handoff/internal/trigger"
)

func newServeCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the remote trigger endpoint",
		Long: `Serve POST /trigger, which checks the shared secret and starts the
hand-off workflow on GitHub Actions. When asana.webhook_secret is set,
signed Asana webhooks are accepted on /webhooks/asana and dispatched the
same way.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Trigger.Listen = listen
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}

			dispatcher, err := trigger.NewGitHubDispatcher(*cfg.Trigger.GitHub, nil)
			if err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			server := newTriggerServer(cfg, dispatcher, a.metrics)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", cfg.Trigger.Listen)
			return server.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides trigger.listen)")
	return cmd
}

// newTriggerServer builds the trigger server. The Asana webhook is mounted
// only when a webhook secret is configured, so every dispatch it starts
// carries a verified signature.
func newTriggerServer(cfg *config.Config, dispatcher trigger.Dispatcher, m *metrics.Metrics) *trigger.Server {
	logger := logging.WithComponent("serve")

	var opts []trigger.Option
	if cfg.Asana.WebhookSecret != "" {
		webhook := asana.NewWebhookHandler(cfg.Asana.WebhookSecret, cfg.Asana.WebhookField)
		webhook.OnTask(func(ctx context.Context, taskGID string) error {
			if err := dispatcher.Dispatch(ctx, trigger.Job{TaskID: taskGID}); err != nil {
				logger.Error("Webhook dispatch failed", slog.String("task", taskGID), slog.Any("error", err))
				return err
			}
			return nil
		})
		opts = append(opts, trigger.WithWebhook(webhook))
	} else {
		logger.Warn("asana.webhook_secret not set, /webhooks/asana is disabled")
	}
	if m != nil {
		opts = append(opts, trigger.WithMetrics(m))
	}
	return trigger.NewServer(cfg.Trigger, dispatcher, opts...)
}
