package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/serkaneren68/ASBA-NLP/internal/fetcher"
	"github.com/serkaneren68/ASBA-NLP/internal/observability"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

// navigator loads pages with bounded retry. Retry k waits
// backoff * 2^(k-1).
type navigator struct {
	page    fetcher.Page
	retries int
	backoff time.Duration
	stats   *Stats
	metrics *observability.Metrics
	logger  *slog.Logger
}

func (n *navigator) Navigate(ctx context.Context, url string) error {
	var (
		err     error
		attempt int
	)
	for attempt = 1; attempt <= n.retries+1; attempt++ {
		if attempt > 1 {
			delay := n.backoff << (attempt - 2)
			n.stats.NavRetries.Add(1)
			n.metrics.IncNavRetry()
			n.logger.Debug("retrying navigation", "url", url, "attempt", attempt, "delay", delay)
			if serr := sleepCtx(ctx, delay); serr != nil {
				return serr
			}
		}

		err = n.page.Navigate(ctx, url)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, types.ErrSessionClosed) {
			break
		}
		n.logger.Warn("navigation failed", "url", url, "attempt", attempt, "error", err)
	}
	return &types.NavigationError{URL: url, Attempt: min(attempt, n.retries+1), Err: err}
}

// sleepCtx pauses for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
