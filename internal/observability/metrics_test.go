package observability

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(testLogger)

	m.IncCategoryPage()
	m.IncProduct("ok")
	m.IncProduct("ok")
	m.IncProduct("failed")
	m.IncPartition("exhausted")
	m.ObserveReviewPage(10, 7, 120*time.Millisecond)
	m.ObserveReviewPage(5, 0, 80*time.Millisecond)
	m.IncNavRetry()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CategoryPages))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Products.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Products.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReviewPages))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.ReviewsExtracted))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.ReviewsInserted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NavRetries))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncCategoryPage()
		m.IncProduct("ok")
		m.IncPartition("blocked")
		m.ObserveReviewPage(1, 1, time.Second)
		m.IncNavRetry()
	})
}

func TestHandlerExposition(t *testing.T) {
	m := NewMetrics(testLogger)
	m.ObserveReviewPage(3, 2, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "reviewharvest_reviews_inserted_total 2"), body)
	assert.Contains(t, body, "reviewharvest_page_duration_seconds_bucket")
}
