package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/serkaneren68/ASBA-NLP/internal/report"
	"github.com/serkaneren68/ASBA-NLP/internal/storage"
)

var reportOutput string

// reportCmd creates the "report" subcommand.
func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize the store as Markdown",
		Args:  cobra.NoArgs,
		RunE:  runReport,
	}
	cmd.Flags().StringVarP(&reportOutput, "output", "o", "", "output file (default stdout)")
	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	st, err := store.Stats(ctx)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if reportOutput != "" {
		f, err := os.Create(reportOutput)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		w = f
	}

	return report.WriteMarkdown(w, &report.Report{
		Generated: time.Now(),
		Backend:   store.Name(),
		Store:     st,
	})
}
