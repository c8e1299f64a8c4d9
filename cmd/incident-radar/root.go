package main

import (
	"github.com/bissquit/incident-radar/internal/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "incident-radar",
		Short: "Status page incident aggregator",
		Long: `incident-radar periodically pulls incidents, components and timelines from
third-party status pages, stores them under one schema and serves them over HTTP.

Configuration is read from --config (YAML) and RADAR_* environment variables,
for example RADAR_DATABASE__URL.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "Path to configuration file (YAML)")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newSyncCmd(),
		newTokenCmd(),
		newVersionCmd(),
	)
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}
