package main

import (
	"errors"
	"fmt"

	"github.com/bissquit/incident-radar/internal/config"
	"github.com/bissquit/incident-radar/internal/pkg/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := migrationURL(cmd)
			if err != nil {
				return err
			}
			return postgres.MigrateUp(url)
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back migrations. Without --steps every migration is reverted,
which drops all stored incidents. Pass --yes to confirm.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return errors.New("refusing to roll back without --yes")
			}
			url, err := migrationURL(cmd)
			if err != nil {
				return err
			}
			if err := postgres.MigrateDown(url, steps); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "rollback complete")
			return nil
		},
	}
	down.Flags().Int("steps", 0, "Number of migrations to roll back (0 = all)")
	down.Flags().BoolP("yes", "y", false, "Confirm the rollback")

	cmd.AddCommand(up, down)
	return cmd
}

func migrationURL(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return "", fmt.Errorf("migrations need the postgres driver, configured %q", cfg.Database.Driver)
	}
	return cfg.Database.URL, nil
}
