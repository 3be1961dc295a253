package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/qa-handoff/internal/comment"
	"github.com/alekspetrov/qa-handoff/internal/handoff"
)

func newRunCmd(configPath *string) *cobra.Command {
	var (
		draft  bool
		mode   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "run <task-id>",
		Short: "Run the QA hand-off for one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := runOptions(draft, mode, dryRun)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.pipeline(opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, runErr := p.Run(ctx, args[0])
			if result != nil {
				fmt.Fprint(cmd.OutOrStdout(), renderResult(result))
			}
			if runErr != nil {
				return fmt.Errorf("hand-off failed: %w", runErr)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&draft, "draft", false, "Post a draft comment without notifying reviewers")
	cmd.Flags().StringVar(&mode, "mode", "", "Comment mode: draft or final (default from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Read everything but upload and post nothing; print the comment")

	return cmd
}

// runOptions maps CLI flags onto pipeline options. --draft wins over --mode.
func runOptions(draft bool, mode string, dryRun bool) ([]handoff.Option, error) {
	var opts []handoff.Option
	switch {
	case draft:
		opts = append(opts, handoff.WithDraft(true))
	case mode == string(comment.ModeDraft):
		opts = append(opts, handoff.WithDraft(true))
	case mode == string(comment.ModeFinal):
		opts = append(opts, handoff.WithDraft(false))
	case mode != "":
		return nil, fmt.Errorf("unknown mode %q: use draft or final", mode)
	}
	if dryRun {
		opts = append(opts, handoff.WithDryRun(true))
	}
	return opts, nil
}
