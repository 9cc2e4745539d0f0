package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the newsletter routes. Storefront endpoints accept
// guests. The customer-save hook requires a service token; subscriber reads
// require a token and are limited to the caller's own record.
func SetupRoutes(h *Handlers, hc *HealthChecker, ids *IdentityResolver, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Binary", "cmd/server")
			next.ServeHTTP(w, req)
		})
	})

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Store-ID", "X-Website-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	if hc != nil {
		r.Get("/health", hc.HandleHealth)
		r.Get("/health/ready", hc.HandleReadiness)
	}

	r.Group(func(r chi.Router) {
		r.Use(ids.Middleware)

		r.Route("/newsletter", func(r chi.Router) {
			r.Post("/subscribe", h.HandleSubscribe)
			r.Get("/confirm", h.HandleConfirm)
			r.Get("/unsubscribe", h.HandleUnsubscribe)
		})

		r.With(RequireService).Post("/customers/{id}/newsletter", h.HandleCustomerSave)
		r.With(RequireToken).Get("/subscribers/{id}", h.HandleGetSubscriber)
	})

	return r
}
