// internal/app/features/auditlog/auditlog.go
//
// Package auditlog serves the admin query over the audit trail.
//
// GET /api/audit filters:
//   - category, event_type
//   - user_id, actor_id, target_id
//   - start_date, end_date (YYYY-MM-DD, interpreted in ?tz, default UTC)
//   - page (1-based, 50 per page)
package auditlog

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - ExternalID / externalID / external_id: The stable identifier asserted by the identity provider

import (
	"net/http"
	"strconv"
	"time"

	errorsfeature "github.com/dalemusser/stratawiki/internal/app/features/errors"
	"github.com/dalemusser/stratawiki/internal/app/store/audit"
	userstore "github.com/dalemusser/stratawiki/internal/app/store/users"
	"github.com/dalemusser/stratawiki/internal/app/system/apperr"
	"github.com/dalemusser/stratawiki/internal/app/system/authz"
	"github.com/dalemusser/stratawiki/internal/app/system/inputval"
	"github.com/dalemusser/stratawiki/internal/app/system/jsonutil"
	"github.com/dalemusser/stratawiki/internal/app/system/normalize"
	"github.com/dalemusser/stratawiki/internal/app/system/timeouts"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const pageSize = 50

// Handler provides the audit query handler.
type Handler struct {
	auditStore *audit.Store
	userStore  *userstore.Store
	errLog     *errorsfeature.ErrorLogger
	logger     *zap.Logger
}

// NewHandler creates a new audit log Handler.
func NewHandler(auditStore *audit.Store, userStore *userstore.Store, logger *zap.Logger) *Handler {
	return &Handler{
		auditStore: auditStore,
		userStore:  userStore,
		errLog:     errorsfeature.NewErrorLogger(logger),
		logger:     logger,
	}
}

// Routes returns a chi.Router with the audit routes mounted.
func Routes(h *Handler, policy authz.Policy) http.Handler {
	r := chi.NewRouter()
	r.Use(policy.Require(models.LevelAdmin))
	r.Get("/", h.list)
	return r
}

// listItem is one audit event with resolved names.
type listItem struct {
	audit.Event
	ActorName string `json:"actor_name,omitempty"`
	UserName  string `json:"user_name,omitempty"`
}

type listResponse struct {
	Events     []listItem `json:"events"`
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
	Total      int64      `json:"total"`
}

// eventTypesForCategory returns the event types for a given category.
// If category is empty, returns all event types.
func eventTypesForCategory(category string) []string {
	authEvents := []string{
		audit.EventSessionIssued,
		audit.EventSessionRevoked,
		audit.EventSessionsRevokedAll,
	}
	adminEvents := []string{
		audit.EventRoleChanged,
		audit.EventRoleChangeDenied,
	}
	contentEvents := []string{
		audit.EventPageCreated,
		audit.EventPageUpdated,
		audit.EventPageDeleted,
		audit.EventMenuCreated,
		audit.EventMenuUpdated,
		audit.EventMenuReordered,
		audit.EventMenuMoved,
		audit.EventMenuDeleted,
	}

	switch category {
	case audit.CategoryAuth:
		return authEvents
	case audit.CategoryAdmin:
		return adminEvents
	case audit.CategoryContent:
		return contentEvents
	case "":
		all := make([]string, 0, len(authEvents)+len(adminEvents)+len(contentEvents))
		all = append(all, authEvents...)
		all = append(all, adminEvents...)
		all = append(all, contentEvents...)
		return all
	default:
		return nil
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// parseFilter builds the store filter and page number from the query string.
func parseFilter(r *http.Request) (audit.QueryFilter, int, error) {
	q := r.URL.Query()
	category := normalize.QueryParam(q.Get("category"))
	eventType := normalize.QueryParam(q.Get("event_type"))

	types := eventTypesForCategory(category)
	if types == nil {
		return audit.QueryFilter{}, 0, apperr.Validation("unknown category")
	}
	if eventType != "" && !contains(types, eventType) {
		return audit.QueryFilter{}, 0, apperr.Validation("unknown event type")
	}

	page := 1
	if raw := normalize.QueryParam(q.Get("page")); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 1 {
			return audit.QueryFilter{}, 0, apperr.Validation("page must be a positive integer")
		}
		page = p
	}

	filter := audit.QueryFilter{
		Category:  category,
		EventType: eventType,
		Limit:     pageSize,
		Offset:    int64((page - 1) * pageSize),
	}

	for _, ref := range []struct {
		param string
		dst   **primitive.ObjectID
	}{
		{"user_id", &filter.UserID},
		{"actor_id", &filter.ActorID},
		{"target_id", &filter.TargetID},
	} {
		raw := normalize.QueryParam(q.Get(ref.param))
		id, err := inputval.ParseOptionalObjectID(&raw, ref.param)
		if err != nil {
			return audit.QueryFilter{}, 0, err
		}
		*ref.dst = id
	}

	loc := time.UTC
	if tz := normalize.QueryParam(q.Get("tz")); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return audit.QueryFilter{}, 0, apperr.Validation("unknown time zone")
		}
		loc = l
	}
	if raw := normalize.QueryParam(q.Get("start_date")); raw != "" {
		t, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			return audit.QueryFilter{}, 0, apperr.Validation("start_date must be YYYY-MM-DD")
		}
		filter.StartTime = &t
	}
	if raw := normalize.QueryParam(q.Get("end_date")); raw != "" {
		t, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			return audit.QueryFilter{}, 0, apperr.Validation("end_date must be YYYY-MM-DD")
		}
		// End of day
		endOfDay := t.Add(24*time.Hour - time.Nanosecond)
		filter.EndTime = &endOfDay
	}
	return filter, page, nil
}

// list returns one page of audit events, newest first.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, page, err := parseFilter(r)
	if err != nil {
		jsonutil.WriteError(w, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Read(), h.logger, "audit.query")
	defer cancel()

	events, err := h.auditStore.Query(ctx, filter)
	if err != nil {
		h.errLog.Write(w, r, "failed to query audit events", err)
		return
	}

	total, err := h.auditStore.CountByFilter(ctx, filter)
	if err != nil {
		h.logger.Error("failed to count audit events", zap.Error(err))
		total = 0
	}

	// Collect unique user IDs for name resolution
	userIDs := make(map[primitive.ObjectID]struct{})
	for _, e := range events {
		if e.ActorID != nil {
			userIDs[*e.ActorID] = struct{}{}
		}
		if e.UserID != nil {
			userIDs[*e.UserID] = struct{}{}
		}
	}

	userNames := make(map[primitive.ObjectID]string)
	if len(userIDs) > 0 {
		ids := make([]primitive.ObjectID, 0, len(userIDs))
		for id := range userIDs {
			ids = append(ids, id)
		}
		users, err := h.userStore.GetByIDs(ctx, ids)
		if err != nil {
			h.logger.Warn("failed to fetch user names for audit log", zap.Error(err))
		} else {
			for _, u := range users {
				userNames[u.ID] = u.DisplayName
			}
		}
	}

	items := make([]listItem, 0, len(events))
	for _, e := range events {
		item := listItem{Event: e}
		if e.ActorID != nil {
			item.ActorName = userNames[*e.ActorID]
		}
		if e.UserID != nil {
			item.UserName = userNames[*e.UserID]
		}
		items = append(items, item)
	}

	totalPages := int((total + pageSize - 1) / pageSize)
	if totalPages < 1 {
		totalPages = 1
	}

	jsonutil.OK(w, listResponse{
		Events:     items,
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
	})
}
