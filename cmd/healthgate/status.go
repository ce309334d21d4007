package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/healthgate/internal/config"
	"github.com/hazz-dev/healthgate/internal/storage"
)

type statusStore interface {
	LatestRun(ctx context.Context) (*storage.Run, error)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the latest recorded health check run",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	return executeStatus(cmd.OutOrStdout(), db)
}

func executeStatus(out io.Writer, db statusStore) error {
	run, err := db.LatestRun(context.Background())
	if err != nil {
		return fmt.Errorf("querying status: %w", err)
	}
	if run == nil {
		fmt.Fprintln(out, "No run history. Run 'healthgate serve' first.")
		return nil
	}

	fmt.Fprintf(out, "overall: %s (recorded %s)\n\n",
		run.Status, run.RanAt.Local().Format("2006-01-02 15:04:05"))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tRESULT\tDURATION\tCRITICAL\tERROR")
	for _, c := range run.Checks {
		duration := "—"
		if c.DurationS != nil {
			duration = time.Duration(*c.DurationS * float64(time.Second)).Round(time.Millisecond).String()
		}
		result := c.Result
		if result == "" {
			result = "—"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\n",
			c.Name, c.Status, result, duration, c.Critical, c.Error)
	}
	w.Flush()
	return nil
}
