package storage

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serkaneren68/ASBA-NLP/internal/config"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "reviews.db"), testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func collect(t *testing.T, s Store) []types.ReviewRecord {
	t.Helper()
	var out []types.ReviewRecord
	require.NoError(t, s.ForEachReview(context.Background(), func(r types.ReviewRecord) error {
		out = append(out, r)
		return nil
	}))
	return out
}

func TestGetOrCreateProductStableID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	url := "https://www.hepsiburada.com/kulaklik-p-HBC0001-yorumlari"
	id1, err := s.GetOrCreateProduct(ctx, url, "Kulaklık")
	require.NoError(t, err)
	id2, err := s.GetOrCreateProduct(ctx, url, "başka başlık")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	other, err := s.GetOrCreateProduct(ctx, url+"?x=1", "")
	require.NoError(t, err)
	assert.NotEqual(t, id1, other)

	// Bypass the cache and make sure the row is really unique.
	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM products WHERE url = ?`, url).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestGetOrCreateProductWithoutCache(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "r.db"), testLogger, WithProductCache(0))
	require.NoError(t, err)
	defer s.Close()

	id1, err := s.GetOrCreateProduct(ctx, "https://example.com/p-1-yorumlari", "")
	require.NoError(t, err)
	id2, err := s.GetOrCreateProduct(ctx, "https://example.com/p-1-yorumlari", "")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestSaveReviewsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	pid, err := s.GetOrCreateProduct(ctx, "https://example.com/a-yorumlari", "")
	require.NoError(t, err)

	page := []types.ReviewItem{
		{Text: "Harika ürün", Rating: 5},
		{Text: "Fena değil", Rating: 3},
	}
	n, err := s.SaveReviews(ctx, pid, page, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.SaveReviews(ctx, pid, page, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "re-saving the same page must not insert")

	// Same text in another partition, whitespace differs.
	n, err = s.SaveReviews(ctx, pid, []types.ReviewItem{{Text: "  Harika ürün\n", Rating: 5}}, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Same text under another product is a distinct review.
	pid2, err := s.GetOrCreateProduct(ctx, "https://example.com/b-yorumlari", "")
	require.NoError(t, err)
	n, err = s.SaveReviews(ctx, pid2, page[:1], 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Len(t, collect(t, s), 3)
}

func TestSaveReviewsSkipsEmptyText(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	pid, err := s.GetOrCreateProduct(ctx, "https://example.com/c-yorumlari", "")
	require.NoError(t, err)

	n, err := s.SaveReviews(ctx, pid, []types.ReviewItem{{Text: "   "}, {Text: ""}, {Text: "ok", Rating: 2}}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.SaveReviews(ctx, pid, nil, 2)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSaveReviewsRatingStorage(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	pid, err := s.GetOrCreateProduct(ctx, "https://example.com/d-yorumlari", "")
	require.NoError(t, err)

	_, err = s.SaveReviews(ctx, pid, []types.ReviewItem{
		{Text: "yıldızsız"},
		{Text: "taşan", Rating: 9},
		{Text: "dört", Rating: 4},
	}, 2)
	require.NoError(t, err)

	var nulls int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM reviews WHERE rating IS NULL`).Scan(&nulls))
	assert.Equal(t, 1, nulls)

	recs := collect(t, s)
	require.Len(t, recs, 3)
	assert.Equal(t, types.RatingUnknown, recs[0].Rating)
	assert.Equal(t, types.Rating(5), recs[1].Rating)
	assert.Equal(t, types.Rating(4), recs[2].Rating)
	for _, r := range recs {
		assert.Equal(t, 2, r.PageNo)
		assert.Equal(t, "https://example.com/d-yorumlari", r.ProductURL)
		assert.Equal(t, types.ContentHash(r.Text), r.Hash)
		assert.False(t, r.CollectedAt.IsZero())
	}
}

func TestMigratesOldSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "old.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE products (id INTEGER PRIMARY KEY, url TEXT UNIQUE NOT NULL, title TEXT, first_seen_ts INTEGER);
		CREATE TABLE reviews (
			id INTEGER PRIMARY KEY,
			product_id INTEGER NOT NULL,
			review_hash TEXT NOT NULL,
			review_text TEXT NOT NULL,
			page_no INTEGER,
			collected_ts INTEGER,
			UNIQUE (product_id, review_hash)
		);
		INSERT INTO products (id, url) VALUES (1, 'https://example.com/old-yorumlari');
		INSERT INTO reviews (product_id, review_hash, review_text, page_no, collected_ts)
			VALUES (1, 'h', 'eski yorum', 1, 0);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := OpenSQLite(ctx, path, testLogger)
	require.NoError(t, err)
	defer s.Close()

	for _, c := range addedColumns {
		ok, err := s.hasColumn(ctx, c.table, c.column)
		require.NoError(t, err)
		assert.True(t, ok, "%s.%s", c.table, c.column)
	}

	recs := collect(t, s)
	require.Len(t, recs, 1)
	assert.Equal(t, types.RatingUnknown, recs[0].Rating)

	id, err := s.GetOrCreateProduct(ctx, "https://example.com/old-yorumlari", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	// Reopening an up-to-date database is a no-op.
	require.NoError(t, s.Close())
	s2, err := OpenSQLite(ctx, path, testLogger)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	a, err := s.GetOrCreateProduct(ctx, "https://example.com/a-yorumlari", "")
	require.NoError(t, err)
	b, err := s.GetOrCreateProduct(ctx, "https://example.com/b-yorumlari", "")
	require.NoError(t, err)

	missing, err := s.ProductsWithoutCategories(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, missing, 2)

	require.NoError(t, s.SetCategories(ctx, a, types.NewCategoryPath("Elektronik", "Ses, Görüntü", "Kulaklık")))

	missing, err = s.ProductsWithoutCategories(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, b, missing[0].ID)

	var stored string
	require.NoError(t, s.db.QueryRow(`SELECT categories FROM products WHERE id = ?`, a).Scan(&stored))
	assert.Equal(t, "Elektronik,Ses  Görüntü,Kulaklık", stored)

	limited, err := s.ProductsWithoutCategories(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	pid, err := s.GetOrCreateProduct(ctx, "https://example.com/s-yorumlari", "")
	require.NoError(t, err)
	_, err = s.SaveReviews(ctx, pid, []types.ReviewItem{
		{Text: "a", Rating: 5}, {Text: "b", Rating: 5}, {Text: "c", Rating: 1}, {Text: "d"},
	}, 1)
	require.NoError(t, err)
	require.NoError(t, s.SetCategories(ctx, pid, types.NewCategoryPath("Ev")))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Products)
	assert.Equal(t, int64(1), st.ProductsCategories)
	assert.Equal(t, int64(4), st.Reviews)
	assert.Equal(t, int64(2), st.ByRating[5])
	assert.Equal(t, int64(1), st.ByRating[1])
	assert.Equal(t, int64(1), st.ByRating[types.RatingUnknown])
}

func TestForEachReviewStopsOnError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	pid, err := s.GetOrCreateProduct(ctx, "https://example.com/e-yorumlari", "")
	require.NoError(t, err)
	_, err = s.SaveReviews(ctx, pid, []types.ReviewItem{{Text: "1"}, {Text: "2"}}, 1)
	require.NoError(t, err)

	stop := errors.New("stop")
	calls := 0
	err = s.ForEachReview(ctx, func(types.ReviewRecord) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestOpenFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Storage
	cfg.Path = filepath.Join(t.TempDir(), "nested", "dir", "reviews.db")

	s, err := Open(context.Background(), cfg, testLogger)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", s.Name())
	require.NoError(t, s.Close())

	cfg.Type = "parquet"
	_, err = Open(context.Background(), cfg, testLogger)
	assert.Error(t, err)
}

func TestStorageErrorsAreFatal(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.db.Close())

	_, err := s.GetOrCreateProduct(context.Background(), "https://example.com/z", "")
	require.Error(t, err)
	var se *types.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "sqlite", se.Backend)
	assert.True(t, types.IsFatal(err))
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("REVIEWHARVEST_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("REVIEWHARVEST_TEST_MONGO_URI not set")
	}
	ctx := context.Background()

	s, err := OpenMongo(ctx, uri, "reviewharvest_test", testLogger)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.DropDatabase(context.Background())
		_ = s.Close()
	})

	pid, err := s.GetOrCreateProduct(ctx, "https://example.com/m-yorumlari", "")
	require.NoError(t, err)
	again, err := s.GetOrCreateProduct(ctx, "https://example.com/m-yorumlari", "")
	require.NoError(t, err)
	assert.Equal(t, pid, again)

	page := []types.ReviewItem{{Text: "iyi", Rating: 4}, {Text: "   "}, {Text: "kötü"}}
	n, err := s.SaveReviews(ctx, pid, page, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.SaveReviews(ctx, pid, page, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	recs := collect(t, s)
	require.Len(t, recs, 2)
	assert.Equal(t, "https://example.com/m-yorumlari", recs[0].ProductURL)

	require.NoError(t, s.SetCategories(ctx, pid, types.NewCategoryPath("Ev")))
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.ProductsCategories)
	assert.Equal(t, int64(2), st.Reviews)
}
