// internal/app/store/revisions/revisionstore.go
package revisionstore

import (
	"context"

	"github.com/dalemusser/stratawiki/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store provides access to the append-only page_revisions collection.
// Revisions are written only by the page store, inside its transactions.
type Store struct {
	c *mongo.Collection
}

// New creates a new revision store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("page_revisions")}
}

// Append inserts rev. The unique (page_id, seq) index rejects a second
// revision with the same sequence number.
func (s *Store) Append(ctx context.Context, rev *models.PageRevision) error {
	if rev.ID.IsZero() {
		rev.ID = primitive.NewObjectID()
	}
	_, err := s.c.InsertOne(ctx, rev)
	return err
}

// History returns the revisions of a page, newest first. A limit of zero
// returns all of them.
func (s *Store) History(ctx context.Context, pageID primitive.ObjectID, limit int64) ([]models.PageRevision, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.c.Find(ctx, bson.M{"page_id": pageID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	revs := []models.PageRevision{}
	if err := cur.All(ctx, &revs); err != nil {
		return nil, err
	}
	return revs, nil
}

// Count returns the number of revisions of a page.
func (s *Store) Count(ctx context.Context, pageID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"page_id": pageID})
}

// DeleteByPage removes every revision of a page.
func (s *Store) DeleteByPage(ctx context.Context, pageID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"page_id": pageID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
