package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/qa-handoff/internal/config"
)

func newConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage handoff configuration",
	}
	cmd.AddCommand(newConfigValidateCmd(configPath), newConfigInitCmd(configPath))
	return cmd
}

func newConfigValidateCmd(configPath *string) *cobra.Command {
	var serve bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *configPath
			if path == "" {
				path = config.DefaultConfigPath()
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			validate := cfg.Validate
			if serve {
				validate = cfg.ValidateServe
			}
			if err := validate(); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), failStyle.Render("✗ "+err.Error()))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓ "+path+" is valid"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&serve, "serve", false, "Also check trigger server settings")
	return cmd
}

func newConfigInitCmd(configPath *string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *configPath
			if path == "" {
				path = config.DefaultConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Wrote "+path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
