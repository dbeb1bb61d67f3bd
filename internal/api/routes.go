package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Platform admin routes
	r.Route("/tenants", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/", s.HandleListTenants)
		r.Post("/", s.HandleRegisterTenant)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.HandleGetTenant)
			r.Put("/", s.HandleUpdateTenant)
			r.Post("/suspend", s.HandleSuspendTenant)
			r.Post("/activate", s.HandleActivateTenant)
			r.Get("/health", s.HandleTenantHealth)
		})
	})

	// Tenant-scoped data routes; the tenant middleware resolves and
	// validates the tenant before any handler runs.
	r.Group(func(r chi.Router) {
		r.Use(s.tenantMiddleware)

		r.Route("/customers", func(r chi.Router) {
			r.Get("/", s.HandleListCustomers)
			r.Post("/", s.HandleCreateCustomer)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetCustomer)
				r.Get("/ledger", s.HandleListLedgerEntries)
				r.Post("/ledger", s.HandleApplyLedgerEntry)
			})
		})
	})
}
