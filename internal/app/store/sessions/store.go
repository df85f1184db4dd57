// internal/app/store/sessions/store.go
package sessions

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - ExternalID / externalID / external_id: The stable identifier asserted by the identity provider

import (
	"context"
	"time"

	"github.com/dalemusser/stratawiki/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store manages session records in MongoDB.
// The token field holds the raw secret; clients only ever see its signed
// encoding. A TTL index on expires_at removes stale rows in the background.
type Store struct {
	c *mongo.Collection
}

// New creates a new session Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("sessions")}
}

// Create creates a new session.
func (s *Store) Create(ctx context.Context, session *models.Session) error {
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	if session.IssuedAt.IsZero() {
		session.IssuedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, session)
	return err
}

// ResolveUser returns the user owning the unexpired session with the given
// secret in a single round trip, or nil when there is none.
func (s *Store) ResolveUser(ctx context.Context, secret string, now time.Time) (*models.User, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"token":      secret,
			"expires_at": bson.M{"$gt": now},
		}}},
		{{Key: "$limit", Value: 1}},
		{{Key: "$lookup", Value: bson.M{
			"from":         "users",
			"localField":   "user_id",
			"foreignField": "_id",
			"as":           "user",
		}}},
		{{Key: "$unwind", Value: "$user"}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$user"}}},
	}

	cur, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		return nil, cur.Err()
	}
	var u models.User
	if err := cur.Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Delete removes a session by secret.
func (s *Store) Delete(ctx context.Context, secret string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"token": secret})
	return err
}

// DeleteByUser removes all sessions for a user.
func (s *Store) DeleteByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteExpired removes sessions that expired before now. The TTL monitor
// does the same lazily; this keeps the collection tight between its passes.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ListByUser retrieves the unexpired sessions of a user, newest first.
func (s *Store) ListByUser(ctx context.Context, userID primitive.ObjectID, now time.Time) ([]models.Session, error) {
	cursor, err := s.c.Find(ctx, bson.M{
		"user_id":    userID,
		"expires_at": bson.M{"$gt": now},
	}, options.Find().SetSort(bson.D{{Key: "issued_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	sessions := []models.Session{}
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CountActive counts unexpired sessions.
func (s *Store) CountActive(ctx context.Context, now time.Time) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"expires_at": bson.M{"$gt": now}})
}
