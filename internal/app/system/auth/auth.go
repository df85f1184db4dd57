// Package auth resolves bearer session tokens into users and guards the
// identity broker endpoint.
package auth

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - ExternalID / externalID / external_id: The stable identifier asserted by the identity provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/stratawiki/internal/app/system/apperr"
	"github.com/dalemusser/stratawiki/internal/app/system/jsonutil"
	"github.com/dalemusser/stratawiki/internal/app/system/metrics"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	"go.uber.org/zap"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Current-User helper                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionUser is the authenticated user in the request context.
// The user record is read fresh on every request so role changes take
// effect immediately.
type SessionUser struct {
	models.User
	Token string // bearer token that authenticated this request
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user & "found?" flag from the request context.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok
}

// CurrentModelUser returns the user record from the request context, or
// nil for anonymous requests.
func CurrentModelUser(r *http.Request) *models.User {
	if u, ok := CurrentUser(r); ok {
		return &u.User
	}
	return nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Middleware                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// LoadSessionUser returns middleware that injects the user into context when
// the request carries "Authorization: Bearer <token>".
//
// A request without an Authorization header continues anonymously. A header
// that is malformed or names an invalid, expired or revoked session is
// rejected with 401 so clients notice a dead token instead of silently
// browsing as anonymous.
func (s *Service) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := BearerToken(header)
		if !ok {
			metrics.AuthFailuresTotal.WithLabelValues("token").Inc()
			jsonutil.WriteError(w, apperr.Unauthenticated())
			return
		}

		u, err := s.Resolve(r.Context(), token)
		if err != nil {
			if errors.Is(err, apperr.ErrUnauthenticated) {
				metrics.AuthFailuresTotal.WithLabelValues("token").Inc()
			} else {
				metrics.AuthFailuresTotal.WithLabelValues("backend").Inc()
				s.logger.Error("session lookup failed",
					zap.Error(err),
					zap.String("path", r.URL.Path))
			}
			jsonutil.WriteError(w, err)
			return
		}

		next.ServeHTTP(w, withUser(r, u))
	})
}

// RequireSignedIn returns middleware that ensures there is a user in context.
func RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		jsonutil.WriteError(w, apperr.Unauthenticated())
	})
}

/*─────────────────────────────────────────────────────────────────────────────*
| Helpers                                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

// WithTestUser injects a SessionUser into the request context for testing.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}
