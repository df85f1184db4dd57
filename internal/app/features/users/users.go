// internal/app/features/users/users.go
//
// Package users lets admins list members and change their roles.
//
// Endpoints (mounted at /api/users):
//   - GET /            - list users (?role=, ?limit=)
//   - PUT /{id}/role   - change a user's role
package users

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - ExternalID / externalID / external_id: The stable identifier asserted by the identity provider

import (
	"net/http"
	"strconv"

	errorsfeature "github.com/dalemusser/stratawiki/internal/app/features/errors"
	userstore "github.com/dalemusser/stratawiki/internal/app/store/users"
	"github.com/dalemusser/stratawiki/internal/app/system/apperr"
	"github.com/dalemusser/stratawiki/internal/app/system/auditlog"
	"github.com/dalemusser/stratawiki/internal/app/system/auth"
	"github.com/dalemusser/stratawiki/internal/app/system/authz"
	"github.com/dalemusser/stratawiki/internal/app/system/inputval"
	"github.com/dalemusser/stratawiki/internal/app/system/jsonutil"
	"github.com/dalemusser/stratawiki/internal/app/system/normalize"
	"github.com/dalemusser/stratawiki/internal/app/system/timeouts"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves the user administration endpoints.
type Handler struct {
	users  *userstore.Store
	audit  *auditlog.Logger
	errLog *errorsfeature.ErrorLogger
	logger *zap.Logger
}

// NewHandler creates a users handler. audit may be nil.
func NewHandler(users *userstore.Store, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		users:  users,
		audit:  audit,
		errLog: errorsfeature.NewErrorLogger(logger),
		logger: logger,
	}
}

// Routes returns a router with the user endpoints.
//
// The role route only requires a signed-in user so that every refused
// attempt, including one by a non-admin, passes through CheckRoleChange and
// lands in the audit trail.
func Routes(h *Handler, policy authz.Policy) http.Handler {
	r := chi.NewRouter()
	r.With(policy.Require(models.LevelAdmin)).Get("/", h.List)
	r.With(policy.Require(models.LevelViewer)).Put("/{id}/role", h.SetRole)
	return r
}

type listResponse struct {
	Users []models.User `json:"users"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required" label:"Role"`
}

type roleResponse struct {
	User    models.User `json:"user"`
	OldRole models.Role `json:"old_role"`
}

// List handles GET /.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f userstore.ListFilter
	if raw := normalize.Role(q.Get("role")); raw != "" {
		role, ok := models.ParseRole(raw)
		if !ok {
			jsonutil.WriteError(w, apperr.Validation("unknown role"))
			return
		}
		f.Role = role
	}
	if raw := normalize.QueryParam(q.Get("limit")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			jsonutil.WriteError(w, apperr.Validation("limit must be a positive integer"))
			return
		}
		f.Limit = n
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Read(), h.logger, "users.list")
	defer cancel()

	list, err := h.users.List(ctx, f)
	if err != nil {
		h.errLog.Write(w, r, "list users failed", err)
		return
	}
	jsonutil.OK(w, listResponse{Users: list})
}

// SetRole handles PUT /{id}/role.
func (h *Handler) SetRole(w http.ResponseWriter, r *http.Request) {
	targetID, err := inputval.ParseObjectID(chi.URLParam(r, "id"), "User ID")
	if err != nil {
		jsonutil.WriteError(w, err)
		return
	}
	var in roleRequest
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.WriteError(w, err)
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}
	actor := auth.CurrentModelUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Write(), h.logger, "users.set_role")
	defer cancel()

	role, err := authz.CheckRoleChange(actor, targetID, normalize.Role(in.Role))
	if err != nil {
		if actor != nil {
			h.audit.RoleChangeDenied(ctx, r, actor.ID, targetID, in.Role, apperr.Message(err))
		}
		jsonutil.WriteError(w, err)
		return
	}

	old, err := h.users.SetRole(ctx, targetID, role)
	if err != nil {
		h.errLog.Write(w, r, "set role failed", err)
		return
	}
	u, err := h.users.GetByID(ctx, targetID)
	if err != nil {
		h.errLog.Write(w, r, "set role failed", err)
		return
	}

	h.audit.RoleChanged(ctx, r, actor.ID, targetID, string(old), string(role))
	h.logger.Info("role changed",
		zap.String("actor_id", actor.ID.Hex()),
		zap.String("user_id", targetID.Hex()),
		zap.String("old_role", string(old)),
		zap.String("new_role", string(role)))
	jsonutil.OK(w, roleResponse{User: *u, OldRole: old})
}
