package auth

import (
	"context"
	"strings"
	"time"

	"github.com/dalemusser/stratawiki/internal/app/system/apperr"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// UserStore is the user persistence the service needs.
type UserStore interface {
	// RecordLogin upserts the user keyed by the identity's external id,
	// setting initialRole only when the user is created, and refreshes the
	// last-login fields. It returns the stored user.
	RecordLogin(ctx context.Context, id models.ExternalIdentity, initialRole models.Role, at time.Time) (*models.User, error)
}

// SessionStore is the session persistence the service needs.
type SessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	// ResolveUser returns the user owning the unexpired session with the
	// given secret, or nil when there is none.
	ResolveUser(ctx context.Context, secret string, now time.Time) (*models.User, error)
	Delete(ctx context.Context, secret string) error
	DeleteByUser(ctx context.Context, userID primitive.ObjectID) (int64, error)
	// ListByUser returns the unexpired sessions of a user, newest first.
	ListByUser(ctx context.Context, userID primitive.ObjectID, now time.Time) ([]models.Session, error)
}

// Config controls session issuance.
type Config struct {
	// AdminExternalIDs and EditorExternalIDs grant a role on first login.
	// Later logins never change a stored role.
	AdminExternalIDs  []string
	EditorExternalIDs []string
}

// Service turns verified identities into sessions and tokens back into
// users.
type Service struct {
	codec    *TokenCodec
	users    UserStore
	sessions SessionStore
	admins   map[string]struct{}
	editors  map[string]struct{}
	logger   *zap.Logger
	now      func() time.Time
}

// Issued is the result of a successful login.
type Issued struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      models.User    `json:"user"`
	Session   models.Session `json:"-"`
}

// NewService creates a session service.
func NewService(codec *TokenCodec, users UserStore, sessions SessionStore, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		codec:    codec,
		users:    users,
		sessions: sessions,
		admins:   idSet(cfg.AdminExternalIDs),
		editors:  idSet(cfg.EditorExternalIDs),
		logger:   logger,
		now:      time.Now,
	}
}

// IssueSession records the login and mints a session token.
func (s *Service) IssueSession(ctx context.Context, id models.ExternalIdentity) (*Issued, error) {
	id.ExternalID = strings.TrimSpace(id.ExternalID)
	id.DisplayName = strings.TrimSpace(id.DisplayName)
	if id.ExternalID == "" {
		return nil, apperr.Validation("external_id is required")
	}
	if id.DisplayName == "" {
		id.DisplayName = id.ExternalID
	}

	now := s.now().UTC()
	u, err := s.users.RecordLogin(ctx, id, s.initialRole(id.ExternalID), now)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "record login", err)
	}

	secret, err := NewSecret()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "generate session secret", err)
	}
	sess := &models.Session{
		Token:     secret,
		UserID:    u.ID,
		IPAddress: id.IP,
		UserAgent: id.UserAgent,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.codec.TTL()),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "create session", err)
	}

	token, err := s.codec.Encode(secret)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "encode session token", err)
	}

	s.logger.Info("session issued",
		zap.String("user_id", u.ID.Hex()),
		zap.String("role", string(u.Role)))

	return &Issued{Token: token, ExpiresAt: sess.ExpiresAt, User: *u, Session: *sess}, nil
}

// Resolve maps a bearer token to its user. Every token problem, whether
// malformed, tampered, expired or revoked, yields the same unauthenticated
// error.
func (s *Service) Resolve(ctx context.Context, token string) (*SessionUser, error) {
	if token == "" {
		return nil, apperr.Unauthenticated()
	}

	secret, err := s.codec.Decode(token)
	if err != nil {
		s.logDecodeError(err)
		return nil, apperr.Unauthenticated()
	}

	u, err := s.sessions.ResolveUser(ctx, secret, s.now().UTC())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "resolve session", err)
	}
	if u == nil {
		return nil, apperr.Unauthenticated()
	}
	return &SessionUser{User: *u, Token: token}, nil
}

// Revoke deletes the session behind token. Unknown, expired and malformed
// tokens are a no-op.
func (s *Service) Revoke(ctx context.Context, token string) error {
	secret, err := s.codec.Decode(token)
	if err != nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, secret); err != nil {
		return apperr.Wrap(apperr.KindInternal, "revoke session", err)
	}
	return nil
}

// RevokeAll deletes every session of the user and returns how many there were.
func (s *Service) RevokeAll(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	n, err := s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "revoke sessions", err)
	}
	return n, nil
}

// ActiveSession is one unexpired session as its owner sees it.
type ActiveSession struct {
	models.Session
	Current bool `json:"current"`
}

// Sessions lists the user's unexpired sessions. The one behind token is
// flagged as current.
func (s *Service) Sessions(ctx context.Context, userID primitive.ObjectID, token string) ([]ActiveSession, error) {
	list, err := s.sessions.ListByUser(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list sessions", err)
	}
	secret, _ := s.codec.Decode(token)
	out := make([]ActiveSession, 0, len(list))
	for _, sess := range list {
		out = append(out, ActiveSession{Session: sess, Current: secret != "" && sess.Token == secret})
	}
	return out, nil
}

func (s *Service) initialRole(externalID string) models.Role {
	if _, ok := s.admins[externalID]; ok {
		return models.RoleAdmin
	}
	if _, ok := s.editors[externalID]; ok {
		return models.RoleEditor
	}
	return models.RoleViewer
}

func (s *Service) logDecodeError(err error) {
	errType, category := classifyTokenError(err)
	switch errType {
	case tokenErrExpired:
		s.logger.Debug("session token expired", zap.String("category", category))
	case tokenErrTampered:
		s.logger.Warn("session token MAC validation failed (possible tampering)", zap.String("category", category))
	case tokenErrCorrupted:
		s.logger.Info("session token decode failed", zap.String("category", category))
	default:
		s.logger.Warn("session token error", zap.Error(err), zap.String("category", category))
	}
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}
