package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serkaneren68/ASBA-NLP/internal/engine"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

func sampleStore() *types.StoreStats {
	return &types.StoreStats{
		Products:           12,
		ProductsCategories: 7,
		Reviews:            40,
		ByRating: map[types.Rating]int64{
			5:                   30,
			4:                   6,
			1:                   2,
			types.RatingUnknown: 2,
		},
	}
}

func TestWriteMarkdownStoreOnly(t *testing.T) {
	var buf bytes.Buffer
	err := WriteMarkdown(&buf, &Report{
		Generated: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Backend:   "sqlite",
		Store:     sampleStore(),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "# Review Harvest Report")
	assert.Contains(t, out, "`sqlite`")
	assert.Contains(t, out, "## Store Contents")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "unknown")
	assert.Contains(t, out, "```mermaid")
	assert.Contains(t, out, `"5 stars" : 30`)
	assert.NotContains(t, out, `"3 stars"`, "empty slices stay out of the chart")
	assert.NotContains(t, out, "## Crawl Run")
}

func TestWriteMarkdownEmptyStore(t *testing.T) {
	var buf bytes.Buffer
	err := WriteMarkdown(&buf, &Report{
		Generated: time.Now(),
		Backend:   "mongo",
		Store:     &types.StoreStats{ByRating: map[types.Rating]int64{}},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No reviews stored.")
	assert.NotContains(t, buf.String(), "```mermaid")
}

func TestWriteMarkdownRun(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := &engine.RunSummary{
		Started:  started,
		Finished: started.Add(95 * time.Second),
		Categories: []*engine.CategoryResult{
			{URL: "https://www.hepsiburada.com/matkaplar-c-1", StartPage: 1, NextPage: 4, Products: 18, Inserted: 120, Stop: engine.StopMaxPages},
		},
		Stats: engine.StatsSnapshot{
			CategoryPages:    3,
			ProductsCrawled:  18,
			PartitionsRun:    108,
			PartitionsFailed: 2,
			ReviewsInserted:  120,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, &Report{Generated: started, Backend: "sqlite", Run: run}))

	out := buf.String()
	assert.Contains(t, out, "## Crawl Run")
	assert.Contains(t, out, "1m35s")
	assert.Contains(t, out, "matkaplar-c-1")
	assert.Contains(t, out, "1-3")
	assert.Contains(t, out, "max_pages")
	assert.Contains(t, out, "[!WARNING]")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "*Generated by reviewharvest*"))
}

func TestWriteMarkdownQuietRun(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, &Report{
		Generated: time.Now(),
		Backend:   "sqlite",
		Run:       &engine.RunSummary{},
	}))
	assert.Contains(t, buf.String(), "[!NOTE]")
	assert.Contains(t, buf.String(), "No new reviews were stored in this run.")
}
