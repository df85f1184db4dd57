package authapi

import (
	"net/http"

	"github.com/dalemusser/stratawiki/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Routes returns a router with the auth endpoints. The session endpoint is
// guarded by the broker key; the rest need a signed-in user.
func Routes(h *Handler, brokerKeyHash string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.With(auth.BrokerKeyAuth(brokerKeyHash, logger)).Post("/session", h.IssueSession)

	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Get("/me", h.Me)
		pr.Get("/sessions", h.Sessions)
		pr.Post("/logout", h.Logout)
		pr.Post("/logout-all", h.LogoutAll)
	})

	return r
}
