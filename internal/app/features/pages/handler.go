// Package pages exposes the wiki page API.
//
// Endpoints (mounted at /api/pages):
//   - GET    /              - list pages, newest first (?limit=)
//   - GET    /search?q=     - ranked search (?limit=)
//   - GET    /{slug}        - read one page
//   - GET    /{id}/history  - revisions, newest first
//   - POST   /              - create (editor)
//   - PUT    /{id}          - update (editor)
//   - DELETE /{id}          - delete (admin)
//
// Unpublished pages exist only for editors and admins; everyone else gets
// 404 for them.
package pages

import (
	"net/http"
	"strconv"

	errorsfeature "github.com/dalemusser/stratawiki/internal/app/features/errors"
	"github.com/dalemusser/stratawiki/internal/app/store/audit"
	pagestore "github.com/dalemusser/stratawiki/internal/app/store/pages"
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

// Handler serves the page endpoints.
type Handler struct {
	store  *pagestore.Store
	audit  *auditlog.Logger
	errLog *errorsfeature.ErrorLogger
	logger *zap.Logger
}

// NewHandler creates a pages handler. audit may be nil.
func NewHandler(store *pagestore.Store, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		store:  store,
		audit:  audit,
		errLog: errorsfeature.NewErrorLogger(logger),
		logger: logger,
	}
}

type createRequest struct {
	Title       string `json:"title" validate:"required,max=200" label:"Title"`
	Slug        string `json:"slug" validate:"omitempty,max=200,slug" label:"Slug"`
	Content     string `json:"content" label:"Content"`
	IsPublished *bool  `json:"is_published"`
}

type updateRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=200" label:"Title"`
	Slug        *string `json:"slug" validate:"omitempty,max=200,slug" label:"Slug"`
	Content     *string `json:"content" label:"Content"`
	IsPublished *bool   `json:"is_published"`
}

type listResponse struct {
	Pages []models.Page `json:"pages"`
}

type searchResponse struct {
	Query   string             `json:"query"`
	Results []pagestore.Result `json:"results"`
}

type historyResponse struct {
	PageID    string                `json:"page_id"`
	Revisions []models.PageRevision `json:"revisions"`
}

// List handles GET /.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		jsonutil.WriteError(w, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Read(), h.logger, "pages.list")
	defer cancel()

	list, err := h.store.List(ctx, pagestore.ListFilter{
		IncludeUnpublished: authz.CanSeeUnpublished(auth.CurrentModelUser(r)),
		Limit:              int64(limit),
	})
	if err != nil {
		h.errLog.Write(w, r, "list pages failed", err)
		return
	}
	if list == nil {
		list = []models.Page{}
	}
	jsonutil.OK(w, listResponse{Pages: list})
}

// Search handles GET /search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		jsonutil.WriteError(w, err)
		return
	}
	q := normalize.QueryParam(r.URL.Query().Get("q"))

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Read(), h.logger, "pages.search")
	defer cancel()

	results, err := h.store.Search(ctx, pagestore.SearchFilter{
		Query:              q,
		IncludeUnpublished: authz.CanSeeUnpublished(auth.CurrentModelUser(r)),
		Limit:              limit,
	})
	if err != nil {
		h.errLog.Write(w, r, "search pages failed", err)
		return
	}
	if results == nil {
		results = []pagestore.Result{}
	}
	jsonutil.OK(w, searchResponse{Query: q, Results: results})
}

// Get handles GET /{slug}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Read(), h.logger, "pages.get")
	defer cancel()

	p, err := h.store.GetBySlug(ctx, chi.URLParam(r, "page"))
	if err == nil && !visible(r, p) {
		err = apperr.NotFound("page not found")
	}
	if err != nil {
		h.errLog.Write(w, r, "get page failed", err)
		return
	}
	jsonutil.OK(w, p)
}

// History handles GET /{id}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, err := inputval.ParseObjectID(chi.URLParam(r, "page"), "Page ID")
	if err != nil {
		jsonutil.WriteError(w, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Read(), h.logger, "pages.history")
	defer cancel()

	p, err := h.store.GetByID(ctx, id)
	if err == nil && !visible(r, p) {
		err = apperr.NotFound("page not found")
	}
	if err != nil {
		h.errLog.Write(w, r, "page history failed", err)
		return
	}
	revs, err := h.store.History(ctx, id)
	if err != nil {
		h.errLog.Write(w, r, "page history failed", err)
		return
	}
	if revs == nil {
		revs = []models.PageRevision{}
	}
	jsonutil.OK(w, historyResponse{PageID: id.Hex(), Revisions: revs})
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
	actor := auth.CurrentModelUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Write(), h.logger, "pages.create")
	defer cancel()

	p, err := h.store.Create(ctx, pagestore.CreateInput{
		Title:       in.Title,
		Slug:        in.Slug,
		Content:     in.Content,
		IsPublished: in.IsPublished,
	}, actor.ID)
	if err != nil {
		h.errLog.Write(w, r, "create page failed", err)
		return
	}

	h.audit.ContentChanged(ctx, r, audit.EventPageCreated, actor.ID, p.ID, map[string]string{
		"slug":  p.Slug,
		"title": p.Title,
	})
	jsonutil.Created(w, p)
}

// Update handles PUT /{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := inputval.ParseObjectID(chi.URLParam(r, "page"), "Page ID")
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

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Write(), h.logger, "pages.update")
	defer cancel()

	p, err := h.store.Update(ctx, id, pagestore.UpdateInput{
		Title:       in.Title,
		Slug:        in.Slug,
		Content:     in.Content,
		IsPublished: in.IsPublished,
	}, actor.ID)
	if err != nil {
		h.errLog.Write(w, r, "update page failed", err)
		return
	}

	h.audit.ContentChanged(ctx, r, audit.EventPageUpdated, actor.ID, p.ID, map[string]string{
		"slug":     p.Slug,
		"revision": strconv.FormatInt(p.Revision, 10),
	})
	jsonutil.OK(w, p)
}

// Delete handles DELETE /{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := inputval.ParseObjectID(chi.URLParam(r, "page"), "Page ID")
	if err != nil {
		jsonutil.WriteError(w, err)
		return
	}
	actor := auth.CurrentModelUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Write(), h.logger, "pages.delete")
	defer cancel()

	p, err := h.store.Delete(ctx, id)
	if err != nil {
		h.errLog.Write(w, r, "delete page failed", err)
		return
	}

	h.audit.ContentChanged(ctx, r, audit.EventPageDeleted, actor.ID, p.ID, map[string]string{
		"slug":  p.Slug,
		"title": p.Title,
	})
	jsonutil.NoContent(w)
}

func visible(r *http.Request, p models.Page) bool {
	return p.IsPublished || authz.CanSeeUnpublished(auth.CurrentModelUser(r))
}

// queryLimit reads ?limit=. Absent means the store default.
func queryLimit(r *http.Request) (int, error) {
	raw := normalize.QueryParam(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperr.Validation("limit must be a positive integer")
	}
	return n, nil
}
