package engine

import (
	"sync/atomic"
	"time"
)

// Stats tracks crawl progress for one run.
type Stats struct {
	CategoryPages    atomic.Int64
	ProductsCrawled  atomic.Int64
	ProductsFailed   atomic.Int64
	PartitionsRun    atomic.Int64
	PartitionsFailed atomic.Int64
	ReviewPages      atomic.Int64
	ReviewsExtracted atomic.Int64
	ReviewsInserted  atomic.Int64
	NavRetries       atomic.Int64

	started atomic.Int64 // unix nanos
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	CategoryPages    int64         `json:"category_pages"`
	ProductsCrawled  int64         `json:"products_crawled"`
	ProductsFailed   int64         `json:"products_failed"`
	PartitionsRun    int64         `json:"partitions_run"`
	PartitionsFailed int64         `json:"partitions_failed"`
	ReviewPages      int64         `json:"review_pages"`
	ReviewsExtracted int64         `json:"reviews_extracted"`
	ReviewsInserted  int64         `json:"reviews_inserted"`
	NavRetries       int64         `json:"navigation_retries"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Snapshot returns a copy of stats safe for reading.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		CategoryPages:    s.CategoryPages.Load(),
		ProductsCrawled:  s.ProductsCrawled.Load(),
		ProductsFailed:   s.ProductsFailed.Load(),
		PartitionsRun:    s.PartitionsRun.Load(),
		PartitionsFailed: s.PartitionsFailed.Load(),
		ReviewPages:      s.ReviewPages.Load(),
		ReviewsExtracted: s.ReviewsExtracted.Load(),
		ReviewsInserted:  s.ReviewsInserted.Load(),
		NavRetries:       s.NavRetries.Load(),
	}
	if ns := s.started.Load(); ns != 0 {
		snap.Elapsed = time.Since(time.Unix(0, ns))
	}
	return snap
}

// MarkStarted records when the run began.
func (s *Stats) MarkStarted(t time.Time) {
	s.started.Store(t.UnixNano())
}

// restore loads counters saved in a checkpoint.
func (s *Stats) restore(snap StatsSnapshot) {
	s.CategoryPages.Store(snap.CategoryPages)
	s.ProductsCrawled.Store(snap.ProductsCrawled)
	s.ProductsFailed.Store(snap.ProductsFailed)
	s.PartitionsRun.Store(snap.PartitionsRun)
	s.PartitionsFailed.Store(snap.PartitionsFailed)
	s.ReviewPages.Store(snap.ReviewPages)
	s.ReviewsExtracted.Store(snap.ReviewsExtracted)
	s.ReviewsInserted.Store(snap.ReviewsInserted)
	s.NavRetries.Store(snap.NavRetries)
}
