package pages

import (
	"net/http"

	"github.com/dalemusser/stratawiki/internal/app/system/authz"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes returns a router with the page endpoints. Each route carries its
// minimum level. {page} is a slug for GET and an ID everywhere else.
func Routes(h *Handler, policy authz.Policy) http.Handler {
	r := chi.NewRouter()

	r.With(policy.RequireRead()).Get("/", h.List)
	r.With(policy.RequireRead()).Get("/search", h.Search)
	r.With(policy.RequireRead()).Get("/{page}", h.Get)
	r.With(policy.Require(models.LevelViewer)).Get("/{page}/history", h.History)

	r.With(policy.Require(models.LevelEditor)).Post("/", h.Create)
	r.With(policy.Require(models.LevelEditor)).Put("/{page}", h.Update)
	r.With(policy.Require(models.LevelAdmin)).Delete("/{page}", h.Delete)

	return r
}
