package engine

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/serkaneren68/ASBA-NLP/internal/config"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

// URLBuilder derives category page, review listing and partition URLs.
type URLBuilder struct {
	OrderParam        string
	OrderValue        string
	PageParam         string
	ReviewSuffix      string
	RatingFilterParam string
	RatingFilters     []int
	IncludeUnfiltered bool
}

// NewURLBuilder reads the URL scheme from the crawl config.
func NewURLBuilder(cfg config.CrawlConfig) URLBuilder {
	return URLBuilder{
		OrderParam:        cfg.OrderParam,
		OrderValue:        cfg.OrderValue,
		PageParam:         cfg.PageParam,
		ReviewSuffix:      cfg.ReviewSuffix,
		RatingFilterParam: cfg.RatingFilterParam,
		RatingFilters:     cfg.RatingFilters,
		IncludeUnfiltered: cfg.IncludeUnfiltered,
	}
}

// CategoryPage returns base with the ordering and page number parameters
// set. All other query parameters are kept.
func (b URLBuilder) CategoryPage(base string, page int) (string, error) {
	u, err := parseAbsolute(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if b.OrderParam != "" {
		q.Set(b.OrderParam, b.OrderValue)
	}
	q.Set(b.PageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Reviews derives a product's review listing URL: the suffix is appended
// to the path unless already present, the query is dropped and the
// fragment kept.
func (b URLBuilder) Reviews(productURL string) (string, error) {
	u, err := parseAbsolute(productURL)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(u.Path, b.ReviewSuffix) {
		u.Path = strings.TrimSuffix(u.Path, "/") + b.ReviewSuffix
		u.RawPath = ""
	}
	u.RawQuery = ""
	u.ForceQuery = false
	return u.String(), nil
}

// Partition is one review listing run: the unfiltered listing or the
// listing filtered to a single star rating.
type Partition struct {
	Rating types.Rating // RatingUnknown for the unfiltered listing
	URL    string
}

func (p Partition) String() string {
	if !p.Rating.Known() {
		return "all"
	}
	return "rating=" + strconv.Itoa(int(p.Rating))
}

// Partitions lists the listing URLs to crawl for one product, unfiltered
// first. Every URL starts at page 1.
func (b URLBuilder) Partitions(reviewsURL string) ([]Partition, error) {
	u, err := parseAbsolute(reviewsURL)
	if err != nil {
		return nil, err
	}

	build := func(rating int) string {
		q := u.Query()
		q.Set(b.PageParam, "1")
		if rating > 0 {
			q.Set(b.RatingFilterParam, strconv.Itoa(rating))
		}
		v := *u
		v.RawQuery = q.Encode()
		return v.String()
	}

	parts := make([]Partition, 0, len(b.RatingFilters)+1)
	if b.IncludeUnfiltered {
		parts = append(parts, Partition{URL: build(0)})
	}
	for _, r := range b.RatingFilters {
		parts = append(parts, Partition{Rating: types.RatingFromStars(r), URL: build(r)})
	}
	return parts, nil
}

// LinkFilter accepts product links on the expected host that are not ad
// or tracking redirects.
type LinkFilter struct {
	Host    string
	Blocked []string
}

// Accept reports whether u may be crawled.
func (f LinkFilter) Accept(u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	want := strings.ToLower(f.Host)
	if host != want && !strings.HasSuffix(host, "."+want) {
		return false
	}
	s := u.String()
	for _, pattern := range f.Blocked {
		if pattern != "" && strings.Contains(s, pattern) {
			return false
		}
	}
	return true
}

// resolveLink resolves href against the page it was found on.
func resolveLink(pageURL, href string) (*url.URL, error) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidURL, href)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	return base.ResolveReference(ref), nil
}

func parseAbsolute(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not absolute", types.ErrInvalidURL, raw)
	}
	return u, nil
}
