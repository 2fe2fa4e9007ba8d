package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/serkaneren68/ASBA-NLP/internal/fetcher"
	"github.com/serkaneren68/ASBA-NLP/internal/parser"
	"github.com/serkaneren68/ASBA-NLP/internal/pipeline"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

// textContentJS reads raw text including nodes hidden by CSS.
const textContentJS = `() => this.textContent`

// Extractor reads review cards from the current review listing page.
type Extractor struct {
	page        fetcher.Page
	card        parser.Selector
	texts       []parser.Selector
	star        parser.Selector
	markers     []string
	cardTimeout time.Duration
	scrollDelay time.Duration
	pipeline    *pipeline.Pipeline
	logger      *slog.Logger
}

// PageExtract is the result of extracting one listing page.
type PageExtract struct {
	Items []types.ReviewItem
	Cards []fetcher.Element
}

// Extract waits for review cards and reads them. A page on which no card
// appears within the card timeout yields an empty result, not an error.
func (x *Extractor) Extract(ctx context.Context) (*PageExtract, error) {
	cards, err := x.page.WaitFor(ctx, x.card, x.cardTimeout)
	if errors.Is(err, types.ErrWaitTimeout) {
		return &PageExtract{}, nil
	}
	if err != nil {
		return nil, err
	}

	// Lazily rendered cards load once the end of the list is visible.
	if err := cards[len(cards)-1].ScrollIntoView(ctx); err != nil {
		x.logger.Debug("scroll to last card", "error", err)
	}
	if err := sleepCtx(ctx, x.scrollDelay); err != nil {
		return nil, err
	}

	raw := make([]types.ReviewItem, 0, len(cards))
	for i, card := range cards {
		text, err := x.cardText(ctx, card)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !errors.Is(err, types.ErrNotFound) {
				x.logger.Debug("card skipped", "card", i, "error", err)
			}
			continue
		}
		rating, err := x.cardRating(ctx, card)
		if err != nil {
			x.logger.Debug("rating unreadable", "card", i, "error", err)
		}
		raw = append(raw, types.ReviewItem{Text: text, Rating: rating})
	}

	items, err := x.pipeline.ProcessPage(raw)
	if err != nil {
		return nil, err
	}
	return &PageExtract{Items: items, Cards: cards}, nil
}

// cardText returns the first non-empty text among the candidate
// sub-elements. It returns types.ErrNotFound when no candidate matched
// and an ExtractionError when matches were present but unreadable.
func (x *Extractor) cardText(ctx context.Context, card fetcher.Element) (string, error) {
	var lastErr error
	for _, sel := range x.texts {
		nodes, err := card.FindAll(ctx, sel)
		if err != nil {
			lastErr = err
			continue
		}
		if len(nodes) == 0 {
			continue
		}
		text, err := elementText(ctx, nodes[0])
		if err != nil {
			lastErr = err
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text, nil
		}
		lastErr = types.ErrEmptyText
	}
	if lastErr != nil {
		return "", &types.ExtractionError{Field: "text", Err: lastErr}
	}
	return "", types.ErrNotFound
}

// cardRating counts filled star indicators.
func (x *Extractor) cardRating(ctx context.Context, card fetcher.Element) (types.Rating, error) {
	stars, err := card.FindAll(ctx, x.star)
	if err != nil {
		return types.RatingUnknown, &types.ExtractionError{Field: "rating", Err: err}
	}
	filled := 0
	for _, star := range stars {
		class, _, err := star.Attribute(ctx, "class")
		if err != nil {
			return types.RatingUnknown, &types.ExtractionError{Field: "rating", Err: err}
		}
		if x.isFilled(class) {
			filled++
		}
	}
	return types.RatingFromStars(filled), nil
}

func (x *Extractor) isFilled(class string) bool {
	class = strings.ToLower(class)
	for _, m := range x.markers {
		if m != "" && strings.Contains(class, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// elementText prefers textContent and falls back to the rendered text.
func elementText(ctx context.Context, el fetcher.Element) (string, error) {
	if s, err := el.Eval(ctx, textContentJS); err == nil {
		return s, nil
	}
	return el.Text(ctx)
}
