package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)

	// Payment provider webhook (signature-verified, no bearer auth)
	r.Post("/billing/webhook", s.webhook.ServeHTTP)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
		r.Post("/register", s.HandleRegister)
		r.Post("/reset-password", s.HandleResetPassword)
	})

	// Identity-resolved routes
	r.Group(func(r chi.Router) {
		r.Use(s.identityMiddleware)

		// Users
		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.HandleListUsers)
			r.Post("/", s.HandleCreateUser)
			r.Get("/me", s.HandleGetCurrentUser)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetUser)
				r.Put("/", s.HandleUpdateUser)
				r.Delete("/", s.HandleDeleteUser)
			})
		})

		// Own tenant
		r.Route("/tenant", func(r chi.Router) {
			r.Get("/", s.HandleGetTenant)
			r.Put("/", s.HandleUpdateTenant)
		})

		// Trainings
		r.Route("/trainings", func(r chi.Router) {
			r.Get("/", s.HandleListTrainings)
			r.Post("/", s.HandleCreateTraining)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetTraining)
				r.Put("/", s.HandleUpdateTraining)
				r.Delete("/", s.HandleDeleteTraining)
			})
		})

		// Assignments
		r.Route("/assignments", func(r chi.Router) {
			r.Get("/", s.HandleListAssignments)
			r.Post("/", s.HandleCreateAssignment)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetAssignment)
				r.Put("/", s.HandleUpdateAssignment)
				r.Delete("/", s.HandleDeleteAssignment)
			})
		})

		// Plans and billing
		r.Get("/plans", s.HandleListPlans)
		r.Route("/billing", func(r chi.Router) {
			r.Post("/checkout", s.HandleCheckout)
			r.Post("/cancel", s.HandleCancelSubscription)
			r.Get("/subscription", s.HandleGetSubscription)
			r.Get("/invoices", s.HandleListInvoices)
		})
	})
}
