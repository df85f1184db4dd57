package pagestore

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/dalemusser/stratawiki/internal/app/system/apperr"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Search weights. A title hit outranks any number of content hits.
const (
	titleWeight      = 3
	exactTitleBonus  = 2
	maxContentHits   = 2
	DefaultSearchMax = 20
	MaxSearchMax     = 100
	MaxQueryLen      = 200

	// searchCandidates bounds how many matching pages are ranked per query.
	searchCandidates = 500
)

// SearchFilter configures Search.
type SearchFilter struct {
	Query              string
	IncludeUnpublished bool
	Limit              int
}

// Result is a ranked search hit.
type Result struct {
	models.Page
	Score int `json:"score"`
}

// Search matches the query case-insensitively as a substring of title and
// content and returns pages ranked by Rank. A blank query matches nothing.
//
// Candidates are fetched in score bands (exact title, title substring,
// content only) so the candidate cap never drops a page that outranks one
// it keeps.
func (s *Store) Search(ctx context.Context, f SearchFilter) ([]Result, error) {
	q := strings.TrimSpace(f.Query)
	if q == "" {
		return []Result{}, nil
	}
	if len(q) > MaxQueryLen {
		return nil, apperr.Validation("query is too long")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultSearchMax
	}
	if limit > MaxSearchMax {
		limit = MaxSearchMax
	}

	quoted := regexp.QuoteMeta(q)
	exact := primitive.Regex{Pattern: "^" + quoted + "$", Options: "i"}
	contains := primitive.Regex{Pattern: quoted, Options: "i"}
	bands := []bson.M{
		{"title": exact},
		{"$and": bson.A{
			bson.M{"title": contains},
			bson.M{"title": bson.M{"$not": exact}},
		}},
		{"$and": bson.A{
			bson.M{"title": bson.M{"$not": contains}},
			bson.M{"content": contains},
		}},
	}

	var pages []models.Page
	for _, band := range bands {
		room := s.searchCap - len(pages)
		if room <= 0 {
			break
		}
		if !f.IncludeUnpublished {
			band["is_published"] = true
		}
		found, err := s.searchBand(ctx, band, room)
		if err != nil {
			return nil, err
		}
		pages = append(pages, found...)
	}

	results := Rank(pages, q)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// searchBand returns up to n pages matching filter, most recently updated
// first.
func (s *Store) searchBand(ctx context.Context, filter bson.M, n int) ([]models.Page, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(n))

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var pages []models.Page
	if err := cur.All(ctx, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// Rank scores pages against query and orders them by score, then most
// recently updated, then id. Pages that do not match are dropped.
func Rank(pages []models.Page, query string) []Result {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Result, 0, len(pages))
	if q == "" {
		return out
	}
	for _, p := range pages {
		if score := Score(p, q); score > 0 {
			out = append(out, Result{Page: p, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID.Hex() < b.ID.Hex()
	})
	return out
}

// Score returns the relevance of p for a lowercased query.
func Score(p models.Page, q string) int {
	score := 0
	title := strings.ToLower(p.Title)
	if strings.Contains(title, q) {
		score += titleWeight
		if title == q {
			score += exactTitleBonus
		}
	}
	hits := strings.Count(strings.ToLower(p.Content), q)
	if hits > maxContentHits {
		hits = maxContentHits
	}
	return score + hits
}
