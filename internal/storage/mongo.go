package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

const (
	productsCollection = "products"
	reviewsCollection  = "reviews"
	countersCollection = "counters"
)

type productDoc struct {
	ID         int64  `bson:"_id"`
	URL        string `bson:"url"`
	Title      string `bson:"title,omitempty"`
	FirstSeen  int64  `bson:"first_seen_ts"`
	Categories string `bson:"categories,omitempty"`
}

type reviewDoc struct {
	ID          int64  `bson:"_id"`
	ProductID   int64  `bson:"product_id"`
	Hash        string `bson:"review_hash"`
	Text        string `bson:"review_text"`
	Rating      *int   `bson:"rating"`
	PageNo      int    `bson:"page_no"`
	CollectedTS int64  `bson:"collected_ts"`
	ProductURL  string `bson:"product_url,omitempty"`
}

// MongoStore stores products and reviews in MongoDB. Review pages are
// written in a transaction, which requires a replica set deployment.
type MongoStore struct {
	client   *mongo.Client
	db       *mongo.Database
	products *mongo.Collection
	reviews  *mongo.Collection
	counters *mongo.Collection
	cache    *productCache
	logger   *slog.Logger
}

// OpenMongo connects to uri and ensures the unique indexes exist.
func OpenMongo(ctx context.Context, uri, database string, logger *slog.Logger, opts ...Option) (*MongoStore, error) {
	o := buildOptions(opts)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, storageErr("mongo", "open", fmt.Errorf("failed to connect to MongoDB: %w", err))
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, storageErr("mongo", "open", fmt.Errorf("failed to ping MongoDB: %w", err))
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		db:       db,
		products: db.Collection(productsCollection),
		reviews:  db.Collection(reviewsCollection),
		counters: db.Collection(countersCollection),
		cache:    newProductCache(o.cacheSize),
		logger:   logger.With("component", "mongo_store"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	s.logger.Info("mongo store ready", "database", database)
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.products.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "url", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return storageErr("mongo", "migrate", fmt.Errorf("failed to create product index: %w", err))
	}
	_, err = s.reviews.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "product_id", Value: 1}, {Key: "review_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "product_id", Value: 1}}},
	})
	if err != nil {
		return storageErr("mongo", "migrate", fmt.Errorf("failed to create review indexes: %w", err))
	}
	return nil
}

func (s *MongoStore) Name() string { return "mongo" }

// nextID hands out integer ids per collection, matching the SQLite rowid
// shape so exports look the same for both backends.
func (s *MongoStore) nextID(ctx context.Context, name string) (int64, error) {
	var out struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return 0, err
	}
	return out.Seq, nil
}

func (s *MongoStore) GetOrCreateProduct(ctx context.Context, url, title string) (int64, error) {
	if id, ok := s.cache.get(url); ok {
		return id, nil
	}

	id, ok, err := s.findProduct(ctx, url)
	if err != nil {
		return 0, storageErr("mongo", "get_or_create_product", err)
	}
	if ok {
		s.cache.add(url, id)
		return id, nil
	}

	newID, err := s.nextID(ctx, productsCollection)
	if err != nil {
		return 0, storageErr("mongo", "get_or_create_product", fmt.Errorf("failed to allocate id: %w", err))
	}
	doc := productDoc{ID: newID, URL: url, Title: title, FirstSeen: time.Now().Unix()}
	_, err = s.products.UpdateOne(ctx,
		bson.M{"url": url},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return 0, storageErr("mongo", "get_or_create_product", fmt.Errorf("failed to upsert product: %w", err))
	}

	id, ok, err = s.findProduct(ctx, url)
	if err != nil {
		return 0, storageErr("mongo", "get_or_create_product", err)
	}
	if !ok {
		return 0, storageErr("mongo", "get_or_create_product", types.ErrProductMissing)
	}
	s.cache.add(url, id)
	return id, nil
}

func (s *MongoStore) findProduct(ctx context.Context, url string) (int64, bool, error) {
	var doc productDoc
	err := s.products.FindOne(ctx, bson.M{"url": url}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read product: %w", err)
	}
	return doc.ID, true, nil
}

// SaveReviews upserts the page inside one transaction; existing
// (product_id, review_hash) pairs are left untouched.
func (s *MongoStore) SaveReviews(ctx context.Context, productID int64, items []types.ReviewItem, pageNo int) (int, error) {
	items = cleanItems(items)
	if len(items) == 0 {
		return 0, nil
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return 0, storageErr("mongo", "save_reviews", fmt.Errorf("failed to start session: %w", err))
	}
	defer sess.EndSession(ctx)

	now := time.Now().Unix()
	res, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		models := make([]mongo.WriteModel, 0, len(items))
		for _, it := range items {
			id, err := s.nextID(sc, reviewsCollection)
			if err != nil {
				return nil, fmt.Errorf("failed to allocate id: %w", err)
			}
			doc := reviewDoc{
				ID:          id,
				ProductID:   productID,
				Hash:        types.ContentHash(it.Text),
				Text:        it.Text,
				Rating:      ratingPtr(it.Rating),
				PageNo:      pageNo,
				CollectedTS: now,
			}
			models = append(models, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"product_id": productID, "review_hash": doc.Hash}).
				SetUpdate(bson.M{"$setOnInsert": doc}).
				SetUpsert(true))
		}
		out, err := s.reviews.BulkWrite(sc, models, options.BulkWrite().SetOrdered(true))
		if err != nil {
			return nil, err
		}
		return int(out.UpsertedCount), nil
	})
	if err != nil {
		return 0, storageErr("mongo", "save_reviews", err)
	}
	return res.(int), nil
}

func (s *MongoStore) ProductsWithoutCategories(ctx context.Context, limit int) ([]types.Product, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"categories": bson.M{"$exists": false}},
		bson.M{"categories": ""},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.products.Find(ctx, filter, opts)
	if err != nil {
		return nil, storageErr("mongo", "list_products", err)
	}
	defer cur.Close(ctx)

	var products []types.Product
	for cur.Next(ctx) {
		var doc productDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, storageErr("mongo", "list_products", err)
		}
		products = append(products, types.Product{
			ID:        doc.ID,
			URL:       doc.URL,
			Title:     doc.Title,
			FirstSeen: time.Unix(doc.FirstSeen, 0),
		})
	}
	if err := cur.Err(); err != nil {
		return nil, storageErr("mongo", "list_products", err)
	}
	return products, nil
}

func (s *MongoStore) SetCategories(ctx context.Context, productID int64, path types.CategoryPath) error {
	_, err := s.products.UpdateOne(ctx,
		bson.M{"_id": productID},
		bson.M{"$set": bson.M{"categories": path.String()}},
	)
	if err != nil {
		return storageErr("mongo", "set_categories", err)
	}
	return nil
}

func (s *MongoStore) ForEachReview(ctx context.Context, fn func(types.ReviewRecord) error) error {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         productsCollection,
			"localField":   "product_id",
			"foreignField": "_id",
			"as":           "product",
		}}},
		{{Key: "$unwind", Value: "$product"}},
		{{Key: "$addFields", Value: bson.M{"product_url": "$product.url"}}},
		{{Key: "$project", Value: bson.M{"product": 0}}},
	}

	cur, err := s.reviews.Aggregate(ctx, pipeline)
	if err != nil {
		return storageErr("mongo", "list_reviews", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc reviewDoc
		if err := cur.Decode(&doc); err != nil {
			return storageErr("mongo", "list_reviews", err)
		}
		rec := types.ReviewRecord{
			ID:          doc.ID,
			ProductID:   doc.ProductID,
			ProductURL:  doc.ProductURL,
			Hash:        doc.Hash,
			Text:        doc.Text,
			PageNo:      doc.PageNo,
			CollectedAt: time.Unix(doc.CollectedTS, 0),
		}
		if doc.Rating != nil {
			rec.Rating = types.RatingFromStars(*doc.Rating)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return storageErr("mongo", "list_reviews", err)
	}
	return nil
}

func (s *MongoStore) Stats(ctx context.Context) (*types.StoreStats, error) {
	st := &types.StoreStats{ByRating: make(map[types.Rating]int64)}

	var err error
	if st.Products, err = s.products.CountDocuments(ctx, bson.M{}); err != nil {
		return nil, storageErr("mongo", "stats", err)
	}
	if st.ProductsCategories, err = s.products.CountDocuments(ctx, bson.M{"categories": bson.M{"$nin": bson.A{nil, ""}}}); err != nil {
		return nil, storageErr("mongo", "stats", err)
	}
	if st.Reviews, err = s.reviews.CountDocuments(ctx, bson.M{}); err != nil {
		return nil, storageErr("mongo", "stats", err)
	}

	cur, err := s.reviews.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$rating", "n": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, storageErr("mongo", "stats", err)
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var row struct {
			Rating *int  `bson:"_id"`
			N      int64 `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, storageErr("mongo", "stats", err)
		}
		r := types.RatingUnknown
		if row.Rating != nil {
			r = types.RatingFromStars(*row.Rating)
		}
		st.ByRating[r] += row.N
	}
	if err := cur.Err(); err != nil {
		return nil, storageErr("mongo", "stats", err)
	}
	return st, nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	s.logger.Info("mongo store closing")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func ratingPtr(r types.Rating) *int {
	if !r.Known() {
		return nil
	}
	v := int(r)
	return &v
}

// DropDatabase removes every collection. Only used by tests.
func (s *MongoStore) DropDatabase(ctx context.Context) error {
	if !strings.HasPrefix(s.db.Name(), "reviewharvest_test") {
		return fmt.Errorf("refusing to drop non-test database %q", s.db.Name())
	}
	return s.db.Drop(ctx)
}
