// internal/app/system/authz/authz.go
//
// Package authz decides whether a user may perform an operation.
//
// Every route declares a static minimum Level. The check is a single
// comparison against the user's role level and never reads data.
package authz

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - ExternalID / externalID / external_id: The stable identifier asserted by the identity provider

import (
	"net/http"

	"github.com/dalemusser/stratawiki/internal/app/system/apperr"
	"github.com/dalemusser/stratawiki/internal/app/system/auth"
	"github.com/dalemusser/stratawiki/internal/app/system/jsonutil"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Anonymous is the requirement met by every request, signed in or not.
const Anonymous = models.LevelAnonymous

// RequireCapability returns nil when u holds at least the required level.
// A nil user only meets the Anonymous requirement.
func RequireCapability(u *models.User, required models.Level) error {
	if required <= Anonymous {
		return nil
	}
	if u == nil {
		return apperr.Unauthenticated()
	}
	if !u.Role.Satisfies(required) {
		return apperr.Forbidden(required.String() + " role required")
	}
	return nil
}

// CanSeeUnpublished reports whether u may read unpublished pages.
func CanSeeUnpublished(u *models.User) bool {
	return u.Level() >= models.LevelEditor
}

// CheckRoleChange validates actor setting the role of targetID to newRole
// and returns the parsed role.
//
// A user may never change their own role through this path, whatever their
// role. Otherwise the actor must be an admin and the role must be known.
func CheckRoleChange(actor *models.User, targetID primitive.ObjectID, newRole string) (models.Role, error) {
	if actor == nil {
		return "", apperr.Unauthenticated()
	}
	if actor.ID == targetID {
		return "", apperr.Validation("you cannot change your own role")
	}
	if err := RequireCapability(actor, models.LevelAdmin); err != nil {
		return "", err
	}
	role, ok := models.ParseRole(newRole)
	if !ok {
		return "", apperr.Validation("unknown role")
	}
	return role, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Middleware                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// Policy holds the deployment-wide authorization settings.
type Policy struct {
	// AllowAnonymousRead lets requests without a session read published
	// pages and the menu.
	AllowAnonymousRead bool
	Logger             *zap.Logger
}

// ReadLevel is the requirement for browsing published content.
func (p Policy) ReadLevel() models.Level {
	if p.AllowAnonymousRead {
		return Anonymous
	}
	return models.LevelViewer
}

// RequireRead returns middleware for browse routes.
func (p Policy) RequireRead() func(http.Handler) http.Handler {
	return p.Require(p.ReadLevel())
}

// Require returns middleware rejecting requests below level with 401 (no
// user) or 403 (insufficient role).
func (p Policy) Require(level models.Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := auth.CurrentModelUser(r)
			if err := RequireCapability(u, level); err != nil {
				if p.Logger != nil {
					p.Logger.Debug("request denied",
						zap.String("path", r.URL.Path),
						zap.String("method", r.Method),
						zap.String("required", level.String()),
						zap.String("role", u.Level().String()))
				}
				jsonutil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
