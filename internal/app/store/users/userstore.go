// internal/app/store/users/userstore.go
package userstore

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - ExternalID / externalID / external_id: The stable identifier asserted by the identity provider

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratawiki/internal/app/system/apperr"
	"github.com/dalemusser/stratawiki/internal/app/system/normalize"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Default and maximum page sizes for List.
const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}
	return &u, nil
}

// GetByIDs loads multiple users by their ObjectIDs. Unknown ids are skipped.
func (s *Store) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetByExternalID loads a user by the identity provider's subject.
func (s *Store) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	var u models.User
	err := s.c.FindOne(ctx, bson.M{"external_id": normalize.ExternalID(externalID)}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}
	return &u, nil
}

// RecordLogin upserts the user for a verified identity.
//
// On first login the user is created with initialRole. Every login
// refreshes the display name, avatar and last-login fields; the stored role
// is never touched here.
func (s *Store) RecordLogin(ctx context.Context, id models.ExternalIdentity, initialRole models.Role, at time.Time) (*models.User, error) {
	if !models.IsValidRole(initialRole) {
		return nil, apperr.Validation("invalid role")
	}
	externalID := normalize.ExternalID(id.ExternalID)
	name := normalize.Name(id.DisplayName)

	filter := bson.M{"external_id": externalID}
	update := bson.M{
		"$set": bson.M{
			"display_name":    name,
			"display_name_ci": text.Fold(name),
			"avatar_url":      id.AvatarURL,
			"last_login_at":   at,
			"last_login_ip":   id.IP,
			"last_user_agent": id.UserAgent,
			"updated_at":      at,
		},
		"$setOnInsert": bson.M{
			"external_id": externalID,
			"role":        initialRole,
			"created_at":  at,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var u models.User
	err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&u)
	if err != nil && wafflemongo.IsDup(err) {
		// Two first logins raced on the unique external_id; the loser
		// now finds the winner's document.
		err = s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&u)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SetRole changes a user's role and returns the previous role.
func (s *Store) SetRole(ctx context.Context, id primitive.ObjectID, role models.Role) (models.Role, error) {
	if !models.IsValidRole(role) {
		return "", apperr.Validation("invalid role")
	}
	var before models.User
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"role": role, "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before).
			SetProjection(bson.M{"role": 1}),
	).Decode(&before)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", apperr.NotFound("user not found")
		}
		return "", err
	}
	return before.Role, nil
}

// ListFilter narrows List.
type ListFilter struct {
	Role  models.Role // empty for all roles
	Limit int64
}

// List returns users ordered by display name.
func (s *Store) List(ctx context.Context, f ListFilter) ([]models.User, error) {
	filter := bson.M{}
	if f.Role != "" {
		filter["role"] = f.Role
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "display_name_ci", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(limit)
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	users := []models.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Count returns the number of users.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{})
}
