/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:       Request logging
  2. Recoverer:    Panic recovery (500 instead of crash)
  3. RequestID:    Unique ID per request for tracing
  4. CORS:         Cross-origin requests for frontend
  5. RateLimiter:  Per-caller token bucket
  6. RequireActor: Mutating routes need X-Actor-ID

ROUTE GROUPS:
  /api/slots/*      Vendor service slots
  /api/laundry/*    Laundry window bookings
  /api/orders/*     Group bulk orders
  /api/records/*    Reserve/cancel on any record
  /api/admin/*      Operational endpoints
  /health           Liveness probe

SEE ALSO:
  - handlers.go: Handler implementations
  - identity.go: Actor resolution
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, limiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		AllowCredentials: true,
	}))
	if limiter != nil {
		r.Use(limiter.Limit)
	}

	r.Get("/health", h.HandleHealth)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Service slot routes
		r.Route("/slots", func(r chi.Router) {
			r.Get("/", h.HandleListSlots)
			r.With(RequireActor).Post("/", h.HandleCreateSlot)
		})

		// Laundry routes
		r.Route("/laundry", func(r chi.Router) {
			r.Get("/", h.HandleListLaundry)
			r.With(RequireActor).Post("/", h.HandleBookLaundry)
		})

		// Group order routes
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.HandleListOrders)
			r.With(RequireActor).Post("/", h.HandleCreateOrder)
			r.Post("/discount-report", h.HandleDiscountReport)
		})

		// Record routes (reserve/cancel on any kind)
		r.Route("/records", func(r chi.Router) {
			r.Get("/{id}", h.HandleGetRecord)
			r.Group(func(r chi.Router) {
				r.Use(RequireActor)
				r.Post("/{id}/reserve", h.HandleReserve)
				r.Delete("/{id}/reserve", h.HandleCancelReservation)
				r.Post("/{id}/complete", h.HandleComplete)
				r.Delete("/{id}", h.HandleCancelRecord)
			})
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.HandleSweep)
		})
	})

	return r
}
