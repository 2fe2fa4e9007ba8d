package pipeline

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/serkaneren68/ASBA-NLP/internal/config"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

// Middleware processes a review item and returns the (possibly modified)
// item. Return nil to drop the item.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms an item. Return nil to drop the item.
	Process(item *types.ReviewItem) (*types.ReviewItem, error)
}

// Resetter is implemented by middleware holding per-batch state.
type Resetter interface {
	Reset()
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// FromConfig builds the standard review pipeline: trim, minimum length,
// rating clamp and, when enabled, per-page dedup.
func FromConfig(cfg config.PipelineConfig, logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(&TrimMiddleware{})
	p.Use(&MinLengthMiddleware{MinRunes: max(cfg.MinTextLength, 1)})
	p.Use(&RatingClampMiddleware{})
	if cfg.DedupPage {
		p.Use(NewPageDedupMiddleware())
	}
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the item through all middleware in order.
func (p *Pipeline) Process(item *types.ReviewItem) (*types.ReviewItem, error) {
	current := item

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{Stage: mw.Name(), Err: err}
		}
		if result == nil {
			p.logger.Debug("item dropped", "stage", mw.Name())
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// ProcessPage runs one listing page's items through the chain, resetting
// per-batch state first. Dropped items are omitted; order is preserved.
func (p *Pipeline) ProcessPage(items []types.ReviewItem) ([]types.ReviewItem, error) {
	for _, mw := range p.middlewares {
		if r, ok := mw.(Resetter); ok {
			r.Reset()
		}
	}

	out := make([]types.ReviewItem, 0, len(items))
	for i := range items {
		item := items[i]
		result, err := p.Process(&item)
		if err != nil {
			return nil, err
		}
		if result != nil {
			out = append(out, *result)
		}
	}
	return out, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// --- Built-in Middleware ---

// TrimMiddleware trims surrounding whitespace from the review text.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(item *types.ReviewItem) (*types.ReviewItem, error) {
	item.Text = strings.TrimSpace(item.Text)
	return item, nil
}

// MinLengthMiddleware drops items whose text has fewer than MinRunes
// characters. With MinRunes of 1 it drops empty texts.
type MinLengthMiddleware struct {
	MinRunes int
}

func (m *MinLengthMiddleware) Name() string { return "min_length" }

func (m *MinLengthMiddleware) Process(item *types.ReviewItem) (*types.ReviewItem, error) {
	if utf8.RuneCountInString(strings.TrimSpace(item.Text)) < m.MinRunes {
		return nil, nil
	}
	return item, nil
}

// RatingClampMiddleware forces the rating into the valid range.
type RatingClampMiddleware struct{}

func (m *RatingClampMiddleware) Name() string { return "rating_clamp" }

func (m *RatingClampMiddleware) Process(item *types.ReviewItem) (*types.ReviewItem, error) {
	item.Rating = types.RatingFromStars(int(item.Rating))
	return item, nil
}

// PageDedupMiddleware drops repeated texts within one page. Nested card
// matches can yield the same review twice.
type PageDedupMiddleware struct {
	seen map[string]struct{}
}

func NewPageDedupMiddleware() *PageDedupMiddleware {
	return &PageDedupMiddleware{seen: make(map[string]struct{})}
}

func (m *PageDedupMiddleware) Name() string { return "page_dedup" }

func (m *PageDedupMiddleware) Reset() {
	m.seen = make(map[string]struct{})
}

func (m *PageDedupMiddleware) Process(item *types.ReviewItem) (*types.ReviewItem, error) {
	key := types.ContentHash(item.Text)
	if _, exists := m.seen[key]; exists {
		return nil, nil
	}
	m.seen[key] = struct{}{}
	return item, nil
}
