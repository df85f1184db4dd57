// internal/domain/models/user.go
package models

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - ExternalID / externalID / external_id: The stable identifier asserted by the identity provider

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a wiki member.
//
// Users are created on their first verified login and never deleted by
// themselves. The role changes only through an admin; a re-login only
// refreshes the last-login fields and profile.
type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ExternalID    string             `bson:"external_id" json:"external_id"`
	DisplayName   string             `bson:"display_name" json:"display_name"`
	DisplayNameCI string             `bson:"display_name_ci" json:"-"` // folded for sorting/search
	AvatarURL     string             `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`

	Role Role `bson:"role" json:"role"`

	// Last login
	LastLoginAt   *time.Time `bson:"last_login_at,omitempty" json:"last_login_at,omitempty"`
	LastLoginIP   string     `bson:"last_login_ip,omitempty" json:"last_login_ip,omitempty"`
	LastUserAgent string     `bson:"last_user_agent,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Level returns the user's capability level. A nil user is anonymous.
func (u *User) Level() Level {
	if u == nil {
		return LevelAnonymous
	}
	return u.Role.Level()
}

// ExternalIdentity is a login assertion already verified by the identity
// broker. IP and UserAgent describe the client that completed the login.
type ExternalIdentity struct {
	ExternalID  string `json:"external_id" validate:"required,max=256"`
	DisplayName string `json:"display_name" validate:"required,max=200"`
	AvatarURL   string `json:"avatar_url,omitempty" validate:"omitempty,url,max=2048"`
	IP          string `json:"ip,omitempty" validate:"omitempty,ip"`
	UserAgent   string `json:"user_agent,omitempty" validate:"max=512"`
}
