package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/serkaneren68/ASBA-NLP/internal/config"
	"github.com/serkaneren68/ASBA-NLP/internal/engine"
)

var enrichLimit int

// enrichCmd creates the "enrich" subcommand.
func enrichCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Fill in product categories from page breadcrumbs",
		Long: `Visit stored products that have no category path yet and record the
breadcrumb trail of their product page. Products without a breadcrumb
are left for the next pass.`,
		Args: cobra.NoArgs,
		RunE: runEnrich,
	}
	cmd.Flags().IntVarP(&enrichLimit, "limit", "l", 1000, "products to check (0 = all)")
	cmd.Flags().StringVar(&browserType, "browser", "", "renderer: rod or static")
	return cmd
}

func runEnrich(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if browserType != "" {
		cfg.Browser.Type = browserType
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return engine.WithSession(ctx, cfg, logger, func(ctx context.Context, s *engine.Session) error {
		sum, err := s.Enrich(ctx, enrichLimit)
		if sum != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Checked %d products: %d updated, %d without breadcrumb, %d failed\n",
				sum.Checked, sum.Updated, sum.Empty, sum.Failed)
		}
		return err
	})
}
