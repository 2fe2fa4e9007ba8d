package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/serkaneren68/ASBA-NLP/internal/api"
	"github.com/serkaneren68/ASBA-NLP/internal/config"
	"github.com/serkaneren68/ASBA-NLP/internal/engine"
	"github.com/serkaneren68/ASBA-NLP/internal/observability"
	"github.com/serkaneren68/ASBA-NLP/internal/report"
)

var (
	startPage      int
	maxPages       int
	limitProducts  int
	limitReviews   int
	browserType    string
	headful        bool
	resume         bool
	checkpointPath string
	reportPath     string
)

// crawlCmd creates the "crawl" subcommand.
func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [category-url...]",
		Short: "Crawl categories and store product reviews",
		Long: `Crawl the given category URLs (or crawl.category_urls from the config),
visiting every product and storing its reviews. Reruns are idempotent:
reviews already stored are skipped by content hash.`,
		RunE: runCrawl,
	}

	cmd.Flags().IntVar(&startPage, "start-page", 1, "first category page")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "last category page to visit (0 = until listing ends)")
	cmd.Flags().IntVar(&limitProducts, "limit-products", 0, "new products to crawl per category page (0 = all)")
	cmd.Flags().IntVar(&limitReviews, "limit-reviews", 0, "reviews to collect per rating partition (0 = all)")
	cmd.Flags().StringVar(&browserType, "browser", "", "renderer: rod or static")
	cmd.Flags().BoolVar(&headful, "headful", false, "show the browser window")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume from the checkpoint file")
	cmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "checkpoint file path (enables checkpointing)")
	cmd.Flags().StringVar(&reportPath, "report", "", "write a Markdown run report to this file")

	return cmd
}

// runCrawl executes the crawl command.
func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyCrawlOverrides(cmd, cfg, args)

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if resume && cfg.Crawl.CheckpointPath == "" {
		return fmt.Errorf("--resume needs a checkpoint path (--checkpoint or crawl.checkpoint_path)")
	}

	logger := setupLogger(cfg.Logging)
	logger.Info("starting crawl",
		"categories", len(cfg.Crawl.CategoryURLs),
		"start_page", cfg.Crawl.StartPage,
		"max_pages", cfg.Crawl.MaxPages,
		"browser", cfg.Browser.Type,
		"store", cfg.Storage.Type,
	)

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []engine.Option{engine.WithResume(resume)}
	if cfg.Metrics.Enabled {
		metrics := observability.NewMetrics(logger)
		if err := metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
		opts = append(opts, engine.WithMetrics(metrics))
	}

	var summary *engine.RunSummary
	err = engine.WithSession(ctx, cfg, logger, func(ctx context.Context, s *engine.Session) error {
		if cfg.API.Enabled {
			apiCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			if err := api.NewServer(cfg.API.Port, s, logger).Start(apiCtx); err != nil {
				logger.Warn("failed to start API server", "error", err)
			}
		}

		var runErr error
		summary, runErr = s.Run(ctx)
		if summary != nil && reportPath != "" {
			if err := writeRunReport(ctx, s, summary); err != nil {
				logger.Warn("report not written", "path", reportPath, "error", err)
			}
		}
		return runErr
	}, opts...)

	if summary != nil {
		printSummary(cmd, summary)
	}
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("crawl interrupted")
			if cfg.Crawl.CheckpointPath != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Interrupted. Resume with: reviewharvest crawl --resume --checkpoint %s\n", cfg.Crawl.CheckpointPath)
			}
		}
		return err
	}
	return nil
}

func writeRunReport(ctx context.Context, s *engine.Session, summary *engine.RunSummary) error {
	st, err := s.Store().Stats(ctx)
	if err != nil {
		return err
	}
	f, err := os.Create(reportPath)
	if err != nil {
		return err
	}
	werr := report.WriteMarkdown(f, &report.Report{
		Generated: time.Now(),
		Backend:   s.Store().Name(),
		Store:     st,
		Run:       summary,
	})
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	return werr
}

func printSummary(cmd *cobra.Command, summary *engine.RunSummary) {
	st := summary.Stats
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n✅ Crawl finished in %s\n", summary.Finished.Sub(summary.Started).Round(time.Millisecond))
	fmt.Fprintf(out, "   Categories: %d (%d pages)\n", len(summary.Categories), st.CategoryPages)
	fmt.Fprintf(out, "   Products:   %d crawled, %d failed\n", st.ProductsCrawled, st.ProductsFailed)
	fmt.Fprintf(out, "   Partitions: %d run, %d failed\n", st.PartitionsRun, st.PartitionsFailed)
	fmt.Fprintf(out, "   Reviews:    %d extracted, %d new\n", st.ReviewsExtracted, st.ReviewsInserted)
}

// applyCrawlOverrides applies command-line flag values to the config.
func applyCrawlOverrides(cmd *cobra.Command, cfg *config.Config, args []string) {
	if len(args) > 0 {
		cfg.Crawl.CategoryURLs = args
	}
	flags := cmd.Flags()
	if flags.Changed("start-page") {
		cfg.Crawl.StartPage = startPage
	}
	if flags.Changed("max-pages") {
		cfg.Crawl.MaxPages = maxPages
	}
	if flags.Changed("limit-products") {
		cfg.Crawl.LimitProductsPerPage = limitProducts
	}
	if flags.Changed("limit-reviews") {
		cfg.Crawl.LimitReviewsPerPartition = limitReviews
	}
	if browserType != "" {
		cfg.Browser.Type = browserType
	}
	if headful {
		cfg.Browser.Headless = false
	}
	if checkpointPath != "" {
		cfg.Crawl.CheckpointPath = checkpointPath
	}
}
