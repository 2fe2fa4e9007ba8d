package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// MaxRating is the highest star rating the platform shows.
const MaxRating = 5

// Rating is a 1-5 star rating. The zero value means the rating is unknown
// and is persisted as NULL.
type Rating int

// RatingUnknown is the rating of a review whose stars could not be read.
const RatingUnknown Rating = 0

// RatingFromStars converts a raw filled-star count into a Rating, clamping
// to [0, MaxRating]. Zero filled stars is not a real rating on the
// platform, so it maps to RatingUnknown.
func RatingFromStars(filled int) Rating {
	switch {
	case filled <= 0:
		return RatingUnknown
	case filled > MaxRating:
		return MaxRating
	default:
		return Rating(filled)
	}
}

// Known reports whether the rating carries a star value.
func (r Rating) Known() bool { return r >= 1 && r <= MaxRating }

// MarshalJSON encodes unknown ratings as null.
func (r Rating) MarshalJSON() ([]byte, error) {
	if !r.Known() {
		return []byte("null"), nil
	}
	return json.Marshal(int(r))
}

// UnmarshalJSON accepts null or an integer.
func (r *Rating) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = RatingUnknown
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = RatingFromStars(n)
	return nil
}

// ReviewItem is a single review as extracted from a listing page.
type ReviewItem struct {
	Text   string `json:"text"`
	Rating Rating `json:"rating"`
}

// ContentHash returns the dedup fingerprint of a review text: the hex
// SHA-256 of the text with leading and trailing whitespace removed.
// No other normalization is applied.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// Product is a catalog product row.
type Product struct {
	ID         int64        `json:"id"`
	URL        string       `json:"url"`
	Title      string       `json:"title,omitempty"`
	FirstSeen  time.Time    `json:"first_seen"`
	Categories CategoryPath `json:"categories,omitempty"`
}

// ReviewRecord is a stored review joined with its product URL.
type ReviewRecord struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"product_id"`
	ProductURL  string    `json:"product_url"`
	Hash        string    `json:"review_hash"`
	Text        string    `json:"review_text"`
	Rating      Rating    `json:"rating"`
	PageNo      int       `json:"page_no"`
	CollectedAt time.Time `json:"collected_at"`
}

// StoreStats summarizes the contents of a store.
type StoreStats struct {
	Products           int64
	ProductsCategories int64
	Reviews            int64
	ByRating           map[Rating]int64
}
