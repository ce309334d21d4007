package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/healthgate/internal/checker"
	"github.com/hazz-dev/healthgate/internal/config"
	"github.com/hazz-dev/healthgate/internal/healthcheck"
	"github.com/hazz-dev/healthgate/internal/task"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run all configured checks once and print the results",
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return executeCheck(cmd.OutOrStdout(), cfg)
}

func executeCheck(out io.Writer, cfg *config.Config) error {
	registry := task.NewRegistry(nil)
	for _, c := range cfg.Checks {
		def, err := checker.Definition(c)
		if err != nil {
			return fmt.Errorf("building check %q: %w", c.Name, err)
		}
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("registering check %q: %w", c.Name, err)
		}
	}

	patterns, err := cfg.HealthCheck.CompileChecksEnabled()
	if err != nil {
		return err
	}

	// One attempt, no retries: this is an interactive spot check.
	hc := healthcheck.New(registry, healthcheck.Options{
		MaxRetries:    1,
		ChecksEnabled: patterns,
	})
	defer hc.Stop()

	snap, runErr := hc.Run(context.Background())
	if runErr != nil {
		// A critical failure still leaves result snapshots to print.
		snap, _ = hc.Fetch()
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tRESULT\tDURATION\tCRITICAL\tERROR")
	for _, c := range snap.Checks {
		duration := "—"
		if c.Duration != nil {
			duration = time.Duration(*c.Duration * float64(time.Second)).Round(time.Millisecond).String()
		}
		result := string(c.Result)
		if result == "" {
			result = "—"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\n",
			c.Name,
			c.Status,
			result,
			duration,
			c.Meta.Critical,
			c.Error,
		)
	}
	w.Flush()
	fmt.Fprintf(out, "\noverall: %s\n", snap.Status)

	if runErr != nil {
		return fmt.Errorf("one or more critical checks failed")
	}
	return nil
}
