package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/aurum-saas/aurum-server/internal/auth"
	"github.com/aurum-saas/aurum-server/internal/config"
	"github.com/aurum-saas/aurum-server/internal/ledger"
	"github.com/aurum-saas/aurum-server/internal/storage"
	"github.com/aurum-saas/aurum-server/internal/tenant"
	"github.com/aurum-saas/aurum-server/internal/validation"
)

const claimsContextKey contextKey = "claims"

// RESTServer represents the REST API server
type RESTServer struct {
	config      *config.Config
	store       storage.Store
	directory   *tenant.Directory
	tenants     *tenant.Validator
	provisioner *tenant.Provisioner
	registry    *tenant.Registry
	ledger      *ledger.Book
	auth        *auth.JWTManager
	validator   *validation.Validator
	nc          *nats.Conn
	router      chi.Router
	server      *http.Server
}

// Deps bundles the collaborators the REST server routes traffic to.
type Deps struct {
	Store       storage.Store
	Directory   *tenant.Directory
	Validator   *tenant.Validator
	Provisioner *tenant.Provisioner
	Registry    *tenant.Registry
	Ledger      *ledger.Book

	// NC may be nil; tenant lifecycle events are then not published.
	NC *nats.Conn
}

// NewRESTServer creates a new REST API server
func NewRESTServer(cfg *config.Config, deps Deps) *RESTServer {
	s := &RESTServer{
		config:      cfg,
		store:       deps.Store,
		directory:   deps.Directory,
		tenants:     deps.Validator,
		provisioner: deps.Provisioner,
		registry:    deps.Registry,
		ledger:      deps.Ledger,
		auth:        auth.NewJWTManager(&cfg.JWT),
		validator:   validation.NewValidator(),
		nc:          deps.NC,
		router:      chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr
	log.Info().Str("addr", addr).Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router exposes the handler for tests
func (s *RESTServer) Router() http.Handler {
	return s.router
}

// publishTenantEvent publishes a tenant lifecycle event so other instances
// can drop their directory and connection caches. Best effort: a publish
// failure is logged, never surfaced to the API caller.
func (s *RESTServer) publishTenantEvent(tenantID, event string) {
	if s.nc == nil {
		return
	}

	subject := fmt.Sprintf("tenant.%s.%s", tenantID, event)
	if err := s.nc.Publish(subject, nil); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish tenant event")
	}
}

// authMiddleware is the platform-admin authentication middleware
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get token from header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.respondError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		// Parse Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.respondError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		// Validate token
		claims, err := s.auth.ValidateToken(parts[1])
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		// Add claims to context
		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
