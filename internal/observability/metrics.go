package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reviewharvest"

// Metrics tracks crawl progress. All methods are safe on a nil receiver,
// so components take an optional *Metrics.
type Metrics struct {
	Registry *prometheus.Registry

	CategoryPages    prometheus.Counter
	Products         *prometheus.CounterVec
	Partitions       *prometheus.CounterVec
	ReviewPages      prometheus.Counter
	ReviewsExtracted prometheus.Counter
	ReviewsInserted  prometheus.Counter
	NavRetries       prometheus.Counter
	PageDuration     prometheus.Histogram

	logger *slog.Logger
}

// NewMetrics creates the collectors on a dedicated registry.
func NewMetrics(logger *slog.Logger) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		CategoryPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "category_pages_total",
			Help:      "Category listing pages visited.",
		}),
		Products: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "products_total",
			Help:      "Products crawled by outcome.",
		}, []string{"outcome"}),
		Partitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partitions_total",
			Help:      "Review partitions finished by terminal state.",
		}, []string{"state"}),
		ReviewPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_pages_total",
			Help:      "Review listing pages extracted.",
		}),
		ReviewsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_extracted_total",
			Help:      "Reviews extracted from listing pages.",
		}),
		ReviewsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_inserted_total",
			Help:      "Reviews newly written to the store.",
		}),
		NavRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigation_retries_total",
			Help:      "Navigation attempts retried after a failure.",
		}),
		PageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_duration_seconds",
			Help:      "Time spent extracting and saving one review page.",
			Buckets:   prometheus.DefBuckets,
		}),
		logger: logger.With("component", "metrics"),
	}

	m.Registry.MustRegister(
		m.CategoryPages, m.Products, m.Partitions, m.ReviewPages,
		m.ReviewsExtracted, m.ReviewsInserted, m.NavRetries, m.PageDuration,
	)
	return m
}

func (m *Metrics) IncCategoryPage() {
	if m == nil {
		return
	}
	m.CategoryPages.Inc()
}

// IncProduct counts a finished product; outcome is "ok" or "failed".
func (m *Metrics) IncProduct(outcome string) {
	if m == nil {
		return
	}
	m.Products.WithLabelValues(outcome).Inc()
}

// IncPartition counts a finished partition by its terminal state.
func (m *Metrics) IncPartition(state string) {
	if m == nil {
		return
	}
	m.Partitions.WithLabelValues(state).Inc()
}

// ObserveReviewPage records one extracted and saved review page.
func (m *Metrics) ObserveReviewPage(extracted, inserted int, d time.Duration) {
	if m == nil {
		return
	}
	m.ReviewPages.Inc()
	m.ReviewsExtracted.Add(float64(extracted))
	m.ReviewsInserted.Add(float64(inserted))
	m.PageDuration.Observe(d.Seconds())
}

func (m *Metrics) IncNavRetry() {
	if m == nil {
		return
	}
	m.NavRetries.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// StartServer serves metrics on port until ctx is cancelled.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return nil
}
