package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Router builds the chi router with the global middleware stack.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(h.log))
	r.Use(CORS)

	r.Get("/health", h.HealthCheck)

	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.CreateUser)
		r.Get("/{id}", h.GetUser)
		r.Post("/{id}/role", h.ChangeRole)
	})

	r.Route("/venues", func(r chi.Router) {
		r.Post("/", h.CreateVenue)
		r.Get("/{id}", h.GetVenue)
		r.Delete("/{id}", h.RetireVenue)
		r.Get("/{id}/availability", h.VenueAvailability)
	})

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/{id}", h.GetEvent)
		r.Delete("/{id}", h.DeleteEvent)
		r.Post("/{id}/publish", h.PublishEvent)
		r.Post("/{id}/cancel", h.CancelEvent)
		r.Post("/{id}/complete", h.CompleteEvent)
		r.Post("/{id}/bulk-tickets", h.BulkPurchase)
		r.Get("/{id}/tickets", h.ListEventTickets)
	})

	r.Route("/tickets", func(r chi.Router) {
		r.Post("/", h.Purchase)
		r.Post("/bulk-check-in", h.BulkCheckIn)
		r.Get("/{id}", h.GetTicket)
		r.Post("/{id}/check-in", h.CheckIn)
		r.Post("/{id}/cancel", h.CancelTicket)
		r.Post("/{id}/refund", h.RefundTicket)
	})

	return r
}
