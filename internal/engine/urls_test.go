package engine

import (
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serkaneren68/ASBA-NLP/internal/config"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

func defaultBuilder() URLBuilder {
	return NewURLBuilder(config.DefaultConfig().Crawl)
}

func TestReviewsURL(t *testing.T) {
	b := defaultBuilder()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"appends suffix", "https://shop.example/x/widget-123", "https://shop.example/x/widget-123-yorumlari"},
		{"already derived", "https://shop.example/x/widget-123-yorumlari", "https://shop.example/x/widget-123-yorumlari"},
		{"drops query keeps fragment", "https://shop.example/x/widget-123?magaza=abc&x=1#top", "https://shop.example/x/widget-123-yorumlari#top"},
		{"trailing slash", "https://shop.example/x/widget-123/", "https://shop.example/x/widget-123-yorumlari"},
		{"derived with query", "https://shop.example/x/widget-123-yorumlari?sayfa=4", "https://shop.example/x/widget-123-yorumlari"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.Reviews(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := b.Reviews("/relative/widget")
	assert.ErrorIs(t, err, types.ErrInvalidURL)
}

func TestCategoryPageURL(t *testing.T) {
	b := defaultBuilder()

	got, err := b.CategoryPage("https://shop.example/cat-1?foo=bar", 3)
	require.NoError(t, err)
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/cat-1", u.Path)
	assert.Equal(t, "bar", u.Query().Get("foo"))
	assert.Equal(t, "coksatan", u.Query().Get("siralama"))
	assert.Equal(t, "3", u.Query().Get("sayfa"))

	// Parameter order of the base does not matter.
	other, err := b.CategoryPage("https://shop.example/cat-1?sayfa=9&foo=bar", 3)
	require.NoError(t, err)
	assert.Equal(t, got, other)

	// The configured ordering replaces one already in the base URL.
	got, err = b.CategoryPage("https://shop.example/cat-1?siralama=yorumsayisi", 1)
	require.NoError(t, err)
	u, _ = url.Parse(got)
	assert.Equal(t, []string{"coksatan"}, u.Query()["siralama"])
	assert.Equal(t, "1", u.Query().Get("sayfa"))
}

func TestPartitions(t *testing.T) {
	b := defaultBuilder()
	parts, err := b.Partitions("https://shop.example/widget-yorumlari")
	require.NoError(t, err)
	require.Len(t, parts, 6)

	assert.Equal(t, "all", parts[0].String())
	assert.Equal(t, "https://shop.example/widget-yorumlari?sayfa=1", parts[0].URL)
	for i, p := range parts[1:] {
		rating := i + 1
		assert.Equal(t, types.Rating(rating), p.Rating)
		u, err := url.Parse(p.URL)
		require.NoError(t, err)
		assert.Equal(t, "1", u.Query().Get("sayfa"))
		assert.Equal(t, strconv.Itoa(rating), u.Query().Get("filtre"))
	}

	b.IncludeUnfiltered = false
	b.RatingFilters = []int{5}
	parts, err = b.Partitions("https://shop.example/widget-yorumlari")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "rating=5", parts[0].String())
}

func TestLinkFilter(t *testing.T) {
	f := LinkFilter{Host: "hepsiburada.com", Blocked: []string{"adservice"}}
	tests := []struct {
		raw  string
		want bool
	}{
		{"https://www.hepsiburada.com/urun-p-1", true},
		{"https://hepsiburada.com/urun-p-1", true},
		{"http://m.hepsiburada.com/urun-p-1", true},
		{"https://adservice.hepsiburada.com/click?u=x", false},
		{"https://www.hepsiburada.com/r?src=adservice", false},
		{"https://evilhepsiburada.com/urun-p-1", false},
		{"https://example.org/urun-p-1", false},
		{"ftp://www.hepsiburada.com/urun-p-1", false},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.want, f.Accept(u), tt.raw)
	}
}

func TestResolveLink(t *testing.T) {
	u, err := resolveLink("https://www.hepsiburada.com/cat-1?sayfa=2", "/urun-a-p-1")
	require.NoError(t, err)
	assert.Equal(t, "https://www.hepsiburada.com/urun-a-p-1", u.String())

	for _, bad := range []string{"", "   ", "#", "javascript:void(0)"} {
		_, err := resolveLink("https://www.hepsiburada.com/", bad)
		assert.ErrorIs(t, err, types.ErrInvalidURL, bad)
	}
}

func TestVisitedSet(t *testing.T) {
	v := NewVisitedSet(4)
	assert.True(t, v.Add("https://www.hepsiburada.com/urun-a-p-1"))
	assert.False(t, v.Add("HTTPS://WWW.HEPSIBURADA.COM:443/urun-a-p-1/#yorumlar"))
	assert.True(t, v.Contains("https://www.hepsiburada.com/urun-a-p-1"))
	assert.True(t, v.Add("https://www.hepsiburada.com/urun-b-p-2?b=2&a=1"))
	assert.False(t, v.Add("https://www.hepsiburada.com/urun-b-p-2?a=1&b=2"))
	assert.Equal(t, 2, v.Len())

	restored := NewVisitedSet(0)
	restored.Import(v.Export())
	assert.Equal(t, v.Export(), restored.Export())
	assert.True(t, restored.Contains("https://www.hepsiburada.com/urun-a-p-1"))
}
