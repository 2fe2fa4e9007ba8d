package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/serkaneren68/ASBA-NLP/internal/storage"
)

var (
	exportFormat string
	exportOutput string
)

// exportCmd creates the "export" subcommand.
func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored reviews to JSON, JSONL or CSV",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
	cmd.Flags().StringVarP(&exportFormat, "format", "f", "jsonl", "output format: json, jsonl, csv")
	cmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default reviews.<format>)")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	format := strings.ToLower(exportFormat)
	path := exportOutput
	if path == "" {
		path = "reviews." + format
	}

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	exp, err := storage.NewFileExporter(format, path, logger)
	if err != nil {
		return err
	}
	n, err := storage.Export(ctx, store, exp)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d reviews to %s\n", n, path)
	return nil
}
