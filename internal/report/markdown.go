// Package report renders harvest summaries as Markdown.
package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/serkaneren68/ASBA-NLP/internal/engine"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

// Report is the input of a summary. Run is nil when only the store is
// described.
type Report struct {
	Generated time.Time
	Backend   string
	Store     *types.StoreStats
	Run       *engine.RunSummary
}

// WriteMarkdown renders r to w.
func WriteMarkdown(w io.Writer, r *Report) error {
	md := markdown.NewMarkdown(w)

	md.H1("Review Harvest Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Generated", r.Generated.Format("2006-01-02 15:04:05 MST")},
			{"Store", "`" + r.Backend + "`"},
		},
	})
	md.PlainText("")

	if r.Run != nil {
		writeRun(md, r.Run)
	}
	if r.Store != nil {
		writeStore(md, r.Store)
	}

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by reviewharvest*")

	return md.Build()
}

func writeRun(md *markdown.Markdown, run *engine.RunSummary) {
	md.H2("Crawl Run")
	md.PlainText("")

	st := run.Stats
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Started", run.Started.Format(time.RFC3339)},
			{"Duration", run.Finished.Sub(run.Started).Round(time.Second).String()},
			{"Resumed", strconv.FormatBool(run.Resumed)},
			{"Category pages", fmtInt(st.CategoryPages)},
			{"Products crawled", fmtInt(st.ProductsCrawled)},
			{"Products failed", fmtInt(st.ProductsFailed)},
			{"Partitions run", fmtInt(st.PartitionsRun)},
			{"Partitions failed", fmtInt(st.PartitionsFailed)},
			{"Review pages", fmtInt(st.ReviewPages)},
			{"Reviews extracted", fmtInt(st.ReviewsExtracted)},
			{"Reviews inserted", fmtInt(st.ReviewsInserted)},
			{"Navigation retries", fmtInt(st.NavRetries)},
		},
	})
	md.PlainText("")

	if len(run.Categories) > 0 {
		md.H3("Categories")
		md.PlainText("")
		rows := make([][]string, 0, len(run.Categories))
		for _, c := range run.Categories {
			if c == nil {
				continue
			}
			rows = append(rows, []string{
				c.URL,
				fmt.Sprintf("%d-%d", c.StartPage, max(c.NextPage-1, c.StartPage)),
				strconv.Itoa(c.Products),
				strconv.Itoa(c.ProductsFailed),
				strconv.Itoa(c.Inserted),
				string(c.Stop),
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Category", "Pages", "Products", "Failed", "Inserted", "Stop"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	switch {
	case st.ProductsFailed > 0 || st.PartitionsFailed > 0:
		md.Warningf("%d product(s) and %d partition(s) failed; rerun to fill the gaps.", st.ProductsFailed, st.PartitionsFailed)
	case st.ReviewsInserted == 0:
		md.Note("No new reviews were stored in this run.")
	default:
		md.Tip(fmt.Sprintf("%d new review(s) stored.", st.ReviewsInserted))
	}
	md.PlainText("")
}

func writeStore(md *markdown.Markdown, st *types.StoreStats) {
	md.H2("Store Contents")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Products", fmtInt(st.Products)},
			{"Products with categories", fmtInt(st.ProductsCategories)},
			{"Reviews", fmtInt(st.Reviews)},
		},
	})
	md.PlainText("")

	md.H3("Rating Distribution")
	md.PlainText("")
	if st.Reviews == 0 {
		md.PlainText("No reviews stored.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, types.MaxRating+1)
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Reviews by rating"),
		piechart.WithShowData(true),
	)
	for r := types.Rating(types.MaxRating); r >= types.RatingUnknown; r-- {
		n := st.ByRating[r]
		rows = append(rows, []string{ratingLabel(r), fmtInt(n), percent(n, st.Reviews)})
		if n > 0 {
			chart.LabelAndIntValue(ratingLabel(r), uint64(n))
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Rating", "Reviews", "Share"},
		Rows:   rows,
	})
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func ratingLabel(r types.Rating) string {
	if !r.Known() {
		return "unknown"
	}
	return strconv.Itoa(int(r)) + " stars"
}

func percent(n, total int64) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}

func fmtInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
