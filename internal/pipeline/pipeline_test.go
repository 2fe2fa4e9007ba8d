package pipeline

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/serkaneren68/ASBA-NLP/internal/config"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestPipelineBasic(t *testing.T) {
	p := New(testLogger)
	p.Use(&TrimMiddleware{})

	result, err := p.Process(&types.ReviewItem{Text: "  Çok iyi  ", Rating: 4})
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if result.Text != "Çok iyi" {
		t.Errorf("expected trimmed text, got %q", result.Text)
	}
	if result.Rating != 4 {
		t.Errorf("expected rating preserved, got %d", result.Rating)
	}
}

func TestMinLengthMiddleware(t *testing.T) {
	m := &MinLengthMiddleware{MinRunes: 3}

	if got, _ := m.Process(&types.ReviewItem{Text: " \t\n"}); got != nil {
		t.Error("expected whitespace-only text to be dropped")
	}
	if got, _ := m.Process(&types.ReviewItem{Text: "iyi"}); got == nil {
		t.Error("expected 3-rune text to pass")
	}
	if got, _ := m.Process(&types.ReviewItem{Text: "ok"}); got != nil {
		t.Error("expected 2-rune text to be dropped")
	}
}

func TestRatingClampMiddleware(t *testing.T) {
	m := &RatingClampMiddleware{}
	tests := map[types.Rating]types.Rating{7: 5, 0: types.RatingUnknown, -2: types.RatingUnknown, 3: 3}
	for in, want := range tests {
		got, _ := m.Process(&types.ReviewItem{Text: "x", Rating: in})
		if got.Rating != want {
			t.Errorf("clamp(%d) = %d, want %d", in, got.Rating, want)
		}
	}
}

func TestProcessPageDedupResetsPerPage(t *testing.T) {
	p := FromConfig(config.PipelineConfig{MinTextLength: 1, DedupPage: true}, testLogger)
	if p.Len() != 4 {
		t.Fatalf("expected 4 middleware, got %d", p.Len())
	}

	page := []types.ReviewItem{
		{Text: "aynı yorum", Rating: 5},
		{Text: "  aynı yorum ", Rating: 5},
		{Text: "   "},
		{Text: "başka", Rating: 9},
	}
	out, err := p.ProcessPage(page)
	if err != nil {
		t.Fatalf("process page: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(out), out)
	}
	if out[0].Text != "aynı yorum" || out[1].Text != "başka" || out[1].Rating != 5 {
		t.Errorf("unexpected output %+v", out)
	}

	// The same text on the next page is kept: dedup state is per page.
	out, err = p.ProcessPage(page[:1])
	if err != nil || len(out) != 1 {
		t.Errorf("expected dedup reset between pages, got %d items (%v)", len(out), err)
	}
}

type failingMiddleware struct{}

func (failingMiddleware) Name() string { return "boom" }
func (failingMiddleware) Process(*types.ReviewItem) (*types.ReviewItem, error) {
	return nil, errors.New("boom")
}

func TestPipelineErrorStage(t *testing.T) {
	p := New(testLogger)
	p.Use(failingMiddleware{})
	_, err := p.ProcessPage([]types.ReviewItem{{Text: "x"}})
	var pe *types.PipelineError
	if !errors.As(err, &pe) || pe.Stage != "boom" {
		t.Errorf("expected PipelineError at stage boom, got %v", err)
	}
}

func BenchmarkProcessPage(b *testing.B) {
	p := FromConfig(config.DefaultConfig().Pipeline, testLogger)
	page := make([]types.ReviewItem, 20)
	for i := range page {
		page[i] = types.ReviewItem{Text: "  ürün beklediğim gibi geldi, teşekkürler  ", Rating: types.Rating(i % 7)}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.ProcessPage(page)
	}
}
