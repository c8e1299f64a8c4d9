package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/bissquit/incident-radar/internal/app"
	"github.com/bissquit/incident-radar/internal/syncer"
	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync across all active data sources and exit",
		Long: `Run one sync across all active data sources, print the outcome of each
source and exit. Failing sources do not change the exit code; a run the
store could not record does.`,
		Args: cobra.NoArgs,
		RunE: runSync,
	}
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = application.Shutdown(ctx)
	}()

	result, err := application.SyncOnce(cmd.Context())
	if result != nil {
		printRunResult(cmd.OutOrStdout(), result)
	}
	return err
}

func printRunResult(out io.Writer, result *syncer.RunResult) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SOURCE\tTYPE\tRESULT\tINCIDENTS\tCOMPONENTS\tRETRIES\tERROR")
	for _, src := range result.Sources {
		outcome := "ok"
		switch {
		case src.Skipped:
			outcome = "skipped"
		case !src.Success:
			outcome = string(src.ErrorKind)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			src.Name, src.Type, outcome, src.Incidents, src.Components, src.RetryCount, src.Error)
	}
	_ = tw.Flush()

	_, _ = fmt.Fprintf(out, "\n%d succeeded, %d failed in %s\n",
		result.Succeeded, result.Failed, result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
}
