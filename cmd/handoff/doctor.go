package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/qa-handoff/internal/adapters/asana"
	"github.com/alekspetrov/qa-handoff/internal/health"
	"github.com/alekspetrov/qa-handoff/internal/identity"
)

func newDoctorCmd(configPath *string) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check connectivity and configuration",
		Long: `Check that Asana and the storage backend are reachable and show which
optional features are enabled.

Examples:
  handoff doctor           # Run all checks
  handoff doctor --verbose # Show how to fix problems`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			deps := health.Deps{Tokens: identity.NewProvider(cfg.Identity, nil)}
			if cfg.Asana.AccessToken != "" {
				deps.Tracker = asana.NewClientWithBaseURL(cfg.Asana.BaseURL, cfg.Asana.AccessToken, cfg.Asana.WorkspaceID)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			report := health.RunChecks(ctx, cfg, deps)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out)
			fmt.Fprintln(out, titleStyle.Render("QA hand-off health check"))
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Connectivity:")
			for _, c := range report.Connectivity {
				fmt.Fprintf(out, "  %s %-10s %s\n", c.Status.ColorSymbol(), c.Name, c.Message)
				if verbose && c.Fix != "" && c.Status != health.StatusOK {
					fmt.Fprintf(out, "               → %s\n", c.Fix)
				}
			}
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Features:")
			for _, f := range report.Features {
				note := ""
				if f.Note != "" {
					note = " (" + f.Note + ")"
				}
				fmt.Fprintf(out, "  %s %-12s%s\n", f.Status.ColorSymbol(), f.Name, note)
			}
			fmt.Fprintln(out)

			errs, warns := report.Summary()
			switch {
			case errs > 0:
				return fmt.Errorf("%d check(s) failed, %d warning(s)", errs, warns)
			case warns > 0:
				fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("%d warning(s)", warns)))
			default:
				fmt.Fprintln(out, successStyle.Render("All checks passed"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show fixes for failing checks")
	return cmd
}
