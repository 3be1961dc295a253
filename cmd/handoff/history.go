package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/qa-handoff/internal/journal"
)

func newHistoryCmd(configPath *string) *cobra.Command {
	var (
		limit int
		task  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent hand-off runs from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Journal == nil || cfg.Journal.Path == "" {
				return fmt.Errorf("journal is disabled (journal.path is empty)")
			}

			store, err := journal.Open(cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var runs []journal.Run
			if task != "" {
				runs, err = store.ForItem(context.Background(), task)
			} else {
				runs, err = store.Recent(context.Background(), limit)
			}
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), renderHistory(runs))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().StringVar(&task, "task", "", "Show every run of one task")
	return cmd
}
