// Package authapi exposes session issue, inspection and revocation.
//
// Endpoints (mounted at /api/auth):
//   - POST /session    - identity broker hands over a verified identity (broker key)
//   - GET  /me         - current user
//   - GET  /sessions   - the current user's unexpired sessions
//   - POST /logout     - revoke the presented token
//   - POST /logout-all - revoke every session of the current user
package authapi

import (
	"net/http"
	"time"

	errorsfeature "github.com/dalemusser/stratawiki/internal/app/features/errors"
	"github.com/dalemusser/stratawiki/internal/app/system/auditlog"
	"github.com/dalemusser/stratawiki/internal/app/system/auth"
	"github.com/dalemusser/stratawiki/internal/app/system/inputval"
	"github.com/dalemusser/stratawiki/internal/app/system/jsonutil"
	"github.com/dalemusser/stratawiki/internal/app/system/timeouts"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	"go.uber.org/zap"
)

// Handler serves the auth endpoints.
type Handler struct {
	svc    *auth.Service
	audit  *auditlog.Logger
	errLog *errorsfeature.ErrorLogger
	logger *zap.Logger
}

// NewHandler creates an auth API handler. audit may be nil.
func NewHandler(svc *auth.Service, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		svc:    svc,
		audit:  audit,
		errLog: errorsfeature.NewErrorLogger(logger),
		logger: logger,
	}
}

// sessionRequest is the identity the broker verified. IP and user agent
// describe the end user's client, not the broker.
type sessionRequest struct {
	ExternalID  string `json:"external_id" validate:"required,max=256" label:"External ID"`
	DisplayName string `json:"display_name" validate:"max=200" label:"Display name"`
	AvatarURL   string `json:"avatar_url" validate:"omitempty,url,max=2048" label:"Avatar URL"`
	IP          string `json:"ip" validate:"omitempty,ip" label:"IP address"`
	UserAgent   string `json:"user_agent" validate:"max=512" label:"User agent"`
}

type sessionResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

// IssueSession handles POST /session.
func (h *Handler) IssueSession(w http.ResponseWriter, r *http.Request) {
	var in sessionRequest
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.WriteError(w, err)
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Write(), h.logger, "auth.issue_session")
	defer cancel()

	issued, err := h.svc.IssueSession(ctx, models.ExternalIdentity{
		ExternalID:  in.ExternalID,
		DisplayName: in.DisplayName,
		AvatarURL:   in.AvatarURL,
		IP:          in.IP,
		UserAgent:   in.UserAgent,
	})
	if err != nil {
		h.errLog.Write(w, r, "issue session failed", err)
		return
	}

	h.audit.SessionIssued(ctx, r, issued.User.ID, issued.User.ExternalID, string(issued.User.Role))
	jsonutil.Created(w, sessionResponse{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		User:      issued.User,
	})
}

// Me handles GET /me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	jsonutil.OK(w, u.User)
}

// Sessions handles GET /sessions.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Read(), h.logger, "auth.sessions")
	defer cancel()

	list, err := h.svc.Sessions(ctx, u.ID, u.Token)
	if err != nil {
		h.errLog.Write(w, r, "list sessions failed", err)
		return
	}
	jsonutil.OK(w, map[string]any{"sessions": list})
}

// Logout handles POST /logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Write(), h.logger, "auth.logout")
	defer cancel()

	if err := h.svc.Revoke(ctx, u.Token); err != nil {
		h.errLog.Write(w, r, "logout failed", err)
		return
	}
	h.audit.SessionRevoked(ctx, r, u.ID)
	jsonutil.NoContent(w)
}

// LogoutAll handles POST /logout-all.
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Write(), h.logger, "auth.logout_all")
	defer cancel()

	n, err := h.svc.RevokeAll(ctx, u.ID)
	if err != nil {
		h.errLog.Write(w, r, "logout-all failed", err)
		return
	}
	h.audit.SessionsRevokedAll(ctx, r, u.ID, n)
	jsonutil.OK(w, map[string]int64{"revoked": n})
}
