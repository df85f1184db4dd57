// Package menus exposes the navigation menu API.
//
// Endpoints (mounted at /api/menus):
//   - GET    /              - menu forest (?root=<id>, ?all=1 adds inactive nodes)
//   - POST   /              - create a node (editor)
//   - PUT    /reorder       - reorder one sibling group (editor)
//   - PUT    /{id}          - edit title, page link, active flag (editor)
//   - PUT    /{id}/move     - reparent a subtree (admin)
//   - DELETE /{id}          - delete, ?cascade=1 for a subtree (admin)
package menus

import (
	"net/http"
	"strconv"

	errorsfeature "github.com/dalemusser/stratawiki/internal/app/features/errors"
	"github.com/dalemusser/stratawiki/internal/app/store/audit"
	menustore "github.com/dalemusser/stratawiki/internal/app/store/menus"
	"github.com/dalemusser/stratawiki/internal/app/system/apperr"
	"github.com/dalemusser/stratawiki/internal/app/system/auditlog"
	"github.com/dalemusser/stratawiki/internal/app/system/auth"
	"github.com/dalemusser/stratawiki/internal/app/system/authz"
	"github.com/dalemusser/stratawiki/internal/app/system/inputval"
	"github.com/dalemusser/stratawiki/internal/app/system/jsonutil"
	"github.com/dalemusser/stratawiki/internal/app/system/normalize"
	"github.com/dalemusser/stratawiki/internal/app/system/timeouts"
	"github.com/dalemusser/stratawiki/internal/domain/menutree"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler serves the menu endpoints.
type Handler struct {
	store  *menustore.Store
	audit  *auditlog.Logger
	errLog *errorsfeature.ErrorLogger
	logger *zap.Logger
}

// NewHandler creates a menus handler. audit may be nil.
func NewHandler(store *menustore.Store, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		store:  store,
		audit:  audit,
		errLog: errorsfeature.NewErrorLogger(logger),
		logger: logger,
	}
}

type createRequest struct {
	ParentID *string `json:"parent_id" validate:"omitempty,objectid" label:"Parent ID"`
	Title    string  `json:"title" validate:"required,max=200" label:"Title"`
	PageSlug *string `json:"page_slug" validate:"omitempty,max=200" label:"Page slug"`
	Position *int    `json:"position" validate:"omitempty,gte=-1" label:"Position"`
	IsActive *bool   `json:"is_active"`
}

type updateRequest struct {
	Title    *string `json:"title" validate:"omitempty,max=200" label:"Title"`
	PageSlug *string `json:"page_slug" validate:"omitempty,max=200" label:"Page slug"`
	IsActive *bool   `json:"is_active"`
}

type reorderRequest struct {
	ParentID *string  `json:"parent_id" validate:"omitempty,objectid" label:"Parent ID"`
	IDs      []string `json:"ids" validate:"required,dive,objectid" label:"IDs"`
}

type moveRequest struct {
	ParentID *string `json:"parent_id" validate:"omitempty,objectid" label:"Parent ID"`
	Position *int    `json:"position" validate:"omitempty,gte=-1" label:"Position"`
}

type treeResponse struct {
	Menu []menutree.Tree `json:"menu"`
}

type deleteResponse struct {
	Removed []primitive.ObjectID `json:"removed"`
}

// Tree handles GET /.
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	root, err := inputval.ParseOptionalObjectID(ptr(normalize.QueryParam(q.Get("root"))), "Root")
	if err != nil {
		jsonutil.WriteError(w, err)
		return
	}
	all := flag(q.Get("all"))
	if all && !authz.CanSeeUnpublished(auth.CurrentModelUser(r)) {
		jsonutil.WriteError(w, apperr.Forbidden("editor role required to list inactive entries"))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Read(), h.logger, "menus.tree")
	defer cancel()

	trees, err := h.store.ListTree(ctx, menustore.TreeFilter{Root: root, IncludeInactive: all})
	if err != nil {
		h.errLog.Write(w, r, "list menu failed", err)
		return
	}
	if trees == nil {
		trees = []menutree.Tree{}
	}
	jsonutil.OK(w, treeResponse{Menu: trees})
}

// Create handles POST /.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in createRequest
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.WriteError(w, err)
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}
	parent, err := inputval.ParseOptionalObjectID(in.ParentID, "Parent ID")
	if err != nil {
		jsonutil.WriteError(w, err)
		return
	}
	actor := auth.CurrentModelUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Write(), h.logger, "menus.create")
	defer cancel()

	n, err := h.store.Create(ctx, menustore.CreateInput{
		ParentID: parent,
		Title:    in.Title,
		PageSlug: in.PageSlug,
		Position: position(in.Position),
		IsActive: in.IsActive,
	})
	if err != nil {
		h.errLog.Write(w, r, "create menu node failed", err)
		return
	}

	h.audit.ContentChanged(ctx, r, audit.EventMenuCreated, actor.ID, n.ID, map[string]string{"title": n.Title})
	jsonutil.Created(w, n)
}

// Update handles PUT /{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := inputval.ParseObjectID(chi.URLParam(r, "id"), "Menu ID")
	if err != nil {
		jsonutil.WriteError(w, err)
		return
	}
	var in updateRequest
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.WriteError(w, err)
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}
	actor := auth.CurrentModelUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Write(), h.logger, "menus.update")
	defer cancel()

	n, err := h.store.Update(ctx, id, menustore.UpdateInput{
		Title:    in.Title,
		PageSlug: in.PageSlug,
		IsActive: in.IsActive,
	})
	if err != nil {
		h.errLog.Write(w, r, "update menu node failed", err)
		return
	}

	h.audit.ContentChanged(ctx, r, audit.EventMenuUpdated, actor.ID, n.ID, map[string]string{"title": n.Title})
	jsonutil.OK(w, n)
}

// Reorder handles PUT /reorder.
func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	var in reorderRequest
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.WriteError(w, err)
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}
	parent, err := inputval.ParseOptionalObjectID(in.ParentID, "Parent ID")
	if err != nil {
		jsonutil.WriteError(w, err)
		return
	}
	ids := make([]primitive.ObjectID, 0, len(in.IDs))
	for _, raw := range in.IDs {
		id, err := inputval.ParseObjectID(raw, "IDs")
		if err != nil {
			jsonutil.WriteError(w, err)
			return
		}
		ids = append(ids, id)
	}
	actor := auth.CurrentModelUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Write(), h.logger, "menus.reorder")
	defer cancel()

	if err := h.store.Reorder(ctx, parent, ids); err != nil {
		h.errLog.Write(w, r, "reorder menu failed", err)
		return
	}

	target := primitive.NilObjectID
	if parent != nil {
		target = *parent
	}
	h.audit.ContentChanged(ctx, r, audit.EventMenuReordered, actor.ID, target, map[string]string{
		"count": strconv.Itoa(len(ids)),
	})
	jsonutil.NoContent(w)
}

// Move handles PUT /{id}/move.
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	id, err := inputval.ParseObjectID(chi.URLParam(r, "id"), "Menu ID")
	if err != nil {
		jsonutil.WriteError(w, err)
		return
	}
	var in moveRequest
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.WriteError(w, err)
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}
	parent, err := inputval.ParseOptionalObjectID(in.ParentID, "Parent ID")
	if err != nil {
		jsonutil.WriteError(w, err)
		return
	}
	actor := auth.CurrentModelUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Write(), h.logger, "menus.move")
	defer cancel()

	n, err := h.store.Move(ctx, id, parent, position(in.Position))
	if err != nil {
		h.errLog.Write(w, r, "move menu node failed", err)
		return
	}

	details := map[string]string{"position": strconv.Itoa(n.OrderIndex)}
	if parent != nil {
		details["parent_id"] = parent.Hex()
	}
	h.audit.ContentChanged(ctx, r, audit.EventMenuMoved, actor.ID, n.ID, details)
	jsonutil.OK(w, n)
}

// Delete handles DELETE /{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := inputval.ParseObjectID(chi.URLParam(r, "id"), "Menu ID")
	if err != nil {
		jsonutil.WriteError(w, err)
		return
	}
	cascade := flag(r.URL.Query().Get("cascade"))
	actor := auth.CurrentModelUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Write(), h.logger, "menus.delete")
	defer cancel()

	removed, err := h.store.Delete(ctx, id, cascade)
	if err != nil {
		h.errLog.Write(w, r, "delete menu node failed", err)
		return
	}

	h.audit.ContentChanged(ctx, r, audit.EventMenuDeleted, actor.ID, id, map[string]string{
		"removed": strconv.Itoa(len(removed)),
		"cascade": strconv.FormatBool(cascade),
	})
	jsonutil.OK(w, deleteResponse{Removed: removed})
}

// position maps an absent position to the end of the sibling group.
func position(p *int) int {
	if p == nil {
		return menutree.Append
	}
	return *p
}

func flag(s string) bool {
	b, err := strconv.ParseBool(normalize.QueryParam(s))
	return err == nil && b
}

func ptr(s string) *string { return &s }
