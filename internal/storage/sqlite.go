package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	// SQLite driver (pure Go, no CGO required)
	_ "modernc.org/sqlite"

	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id            INTEGER PRIMARY KEY,
	url           TEXT UNIQUE NOT NULL,
	title         TEXT,
	first_seen_ts INTEGER,
	categories    TEXT
);

CREATE TABLE IF NOT EXISTS reviews (
	id           INTEGER PRIMARY KEY,
	product_id   INTEGER NOT NULL,
	review_hash  TEXT NOT NULL,
	review_text  TEXT NOT NULL,
	rating       INTEGER,
	page_no      INTEGER,
	collected_ts INTEGER,
	FOREIGN KEY (product_id) REFERENCES products(id),
	UNIQUE (product_id, review_hash)
);
`

const indexes = `
CREATE INDEX IF NOT EXISTS idx_reviews_product ON reviews(product_id);
`

// addedColumns lists columns introduced after the first schema version.
var addedColumns = []struct{ table, column, decl string }{
	{"reviews", "rating", "INTEGER"},
	{"products", "categories", "TEXT"},
}

// SQLiteStore is the default Store, backed by a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	cache  *productCache
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path and brings
// its schema up to date.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, storageErr("sqlite", "open", fmt.Errorf("failed to create database directory: %w", err))
		}
	}

	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storageErr("sqlite", "open", fmt.Errorf("failed to open database: %w", err))
	}

	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:     db,
		path:   path,
		cache:  newProductCache(o.cacheSize),
		logger: logger.With("component", "sqlite_store"),
	}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.logger.Info("sqlite store ready", "path", path)
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return storageErr("sqlite", "migrate", fmt.Errorf("failed to create tables: %w", err))
	}
	for _, c := range addedColumns {
		ok, err := s.hasColumn(ctx, c.table, c.column)
		if err != nil {
			return storageErr("sqlite", "migrate", err)
		}
		if ok {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.column, c.decl)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storageErr("sqlite", "migrate", fmt.Errorf("failed to add %s.%s: %w", c.table, c.column, err))
		}
		s.logger.Info("column added", "table", c.table, "column", c.column)
	}
	if _, err := s.db.ExecContext(ctx, indexes); err != nil {
		return storageErr("sqlite", "migrate", fmt.Errorf("failed to create indexes: %w", err))
	}
	return nil
}

func (s *SQLiteStore) hasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("failed to scan %s columns: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (s *SQLiteStore) Name() string { return "sqlite" }

// GetOrCreateProduct inserts the product if absent, then reads back the
// canonical id.
func (s *SQLiteStore) GetOrCreateProduct(ctx context.Context, url, title string) (int64, error) {
	if id, ok := s.cache.get(url); ok {
		return id, nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO products (url, title, first_seen_ts) VALUES (?, ?, ?)`,
		url, nullString(title), time.Now().Unix(),
	)
	if err != nil {
		return 0, storageErr("sqlite", "get_or_create_product", fmt.Errorf("failed to insert product: %w", err))
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `SELECT id FROM products WHERE url = ?`, url).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storageErr("sqlite", "get_or_create_product", types.ErrProductMissing)
	}
	if err != nil {
		return 0, storageErr("sqlite", "get_or_create_product", fmt.Errorf("failed to read product id: %w", err))
	}

	s.cache.add(url, id)
	return id, nil
}

// SaveReviews writes one page of reviews in a single transaction.
func (s *SQLiteStore) SaveReviews(ctx context.Context, productID int64, items []types.ReviewItem, pageNo int) (int, error) {
	items = cleanItems(items)
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("sqlite", "save_reviews", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO reviews
			(product_id, review_hash, review_text, rating, page_no, collected_ts)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, storageErr("sqlite", "save_reviews", fmt.Errorf("failed to prepare insert: %w", err))
	}
	defer stmt.Close()

	now := time.Now().Unix()
	inserted := 0
	for _, it := range items {
		res, err := stmt.ExecContext(ctx, productID, types.ContentHash(it.Text), it.Text, ratingValue(it.Rating), pageNo, now)
		if err != nil {
			return 0, storageErr("sqlite", "save_reviews", fmt.Errorf("failed to insert review: %w", err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, storageErr("sqlite", "save_reviews", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("sqlite", "save_reviews", fmt.Errorf("failed to commit: %w", err))
	}
	return inserted, nil
}

// ProductsWithoutCategories lists products with an empty category path.
func (s *SQLiteStore) ProductsWithoutCategories(ctx context.Context, limit int) ([]types.Product, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, COALESCE(title, ''), COALESCE(first_seen_ts, 0)
		FROM products
		WHERE categories IS NULL OR TRIM(categories) = ''
		ORDER BY id
		LIMIT ?`, limit)
	if err != nil {
		return nil, storageErr("sqlite", "list_products", err)
	}
	defer rows.Close()

	var products []types.Product
	for rows.Next() {
		var (
			p  types.Product
			ts int64
		)
		if err := rows.Scan(&p.ID, &p.URL, &p.Title, &ts); err != nil {
			return nil, storageErr("sqlite", "list_products", err)
		}
		p.FirstSeen = time.Unix(ts, 0)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("sqlite", "list_products", err)
	}
	return products, nil
}

// SetCategories stores the delimited form of path.
func (s *SQLiteStore) SetCategories(ctx context.Context, productID int64, path types.CategoryPath) error {
	_, err := s.db.ExecContext(ctx, `UPDATE products SET categories = ? WHERE id = ?`, nullString(path.String()), productID)
	if err != nil {
		return storageErr("sqlite", "set_categories", err)
	}
	return nil
}

// ForEachReview streams reviews joined with their product URL. fn must not
// call back into the store.
func (s *SQLiteStore) ForEachReview(ctx context.Context, fn func(types.ReviewRecord) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.product_id, p.url, r.review_hash, r.review_text, r.rating, r.page_no, r.collected_ts
		FROM reviews r
		JOIN products p ON p.id = r.product_id
		ORDER BY r.id`)
	if err != nil {
		return storageErr("sqlite", "list_reviews", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec       types.ReviewRecord
			rating    sql.NullInt64
			pageNo    sql.NullInt64
			collected sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.ProductID, &rec.ProductURL, &rec.Hash, &rec.Text, &rating, &pageNo, &collected); err != nil {
			return storageErr("sqlite", "list_reviews", err)
		}
		if rating.Valid {
			rec.Rating = types.RatingFromStars(int(rating.Int64))
		}
		rec.PageNo = int(pageNo.Int64)
		if collected.Valid {
			rec.CollectedAt = time.Unix(collected.Int64, 0)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return storageErr("sqlite", "list_reviews", err)
	}
	return nil
}

// Stats counts products and reviews.
func (s *SQLiteStore) Stats(ctx context.Context) (*types.StoreStats, error) {
	st := &types.StoreStats{ByRating: make(map[types.Rating]int64)}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM products WHERE categories IS NOT NULL AND TRIM(categories) <> ''),
			(SELECT COUNT(*) FROM reviews)`).Scan(&st.Products, &st.ProductsCategories, &st.Reviews)
	if err != nil {
		return nil, storageErr("sqlite", "stats", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT rating, COUNT(*) FROM reviews GROUP BY rating`)
	if err != nil {
		return nil, storageErr("sqlite", "stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			rating sql.NullInt64
			n      int64
		)
		if err := rows.Scan(&rating, &n); err != nil {
			return nil, storageErr("sqlite", "stats", err)
		}
		r := types.RatingUnknown
		if rating.Valid {
			r = types.RatingFromStars(int(rating.Int64))
		}
		st.ByRating[r] += n
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("sqlite", "stats", err)
	}
	return st, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.logger.Info("sqlite store closing", "path", s.path)
	return s.db.Close()
}

func storageErr(backend, op string, err error) error {
	return &types.StorageError{Backend: backend, Op: op, Err: err}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func ratingValue(r types.Rating) any {
	if !r.Known() {
		return nil
	}
	return int64(r)
}
