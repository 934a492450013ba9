package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/shabalink/vtu-engine/internal/middleware"
)

// SetupRouter wires the HTTP routes and middleware of the VTU engine.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/vtu", func(r chi.Router) {
			// Catalog browsing works without a token; prices fall back to
			// the base tier.
			r.With(h.authMiddleware.Optional).Get("/plans", h.ListPlans)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Post("/airtime", h.BuyAirtime)
				r.Post("/data", h.BuyData)
				r.Post("/cable", h.Cable)
				r.Post("/electricity", h.Electricity)
				r.Post("/verify", h.Verify)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/membership/upgrade", h.Upgrade)
			r.Get("/wallet/balance", h.GetBalance)
			r.Get("/wallet/transactions", h.GetTransactions)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
