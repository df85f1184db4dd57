package menus

import (
	"net/http"

	"github.com/dalemusser/stratawiki/internal/app/system/authz"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes returns a router with the menu endpoints.
func Routes(h *Handler, policy authz.Policy) http.Handler {
	r := chi.NewRouter()

	r.With(policy.RequireRead()).Get("/", h.Tree)

	r.Group(func(er chi.Router) {
		er.Use(policy.Require(models.LevelEditor))
		er.Post("/", h.Create)
		er.Put("/reorder", h.Reorder)
		er.Put("/{id}", h.Update)
	})

	r.Group(func(ar chi.Router) {
		ar.Use(policy.Require(models.LevelAdmin))
		ar.Put("/{id}/move", h.Move)
		ar.Delete("/{id}", h.Delete)
	})

	return r
}
