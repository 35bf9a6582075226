package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/trainhub/trainhub-server/internal/apperr"
	"github.com/trainhub/trainhub-server/internal/auth"
	"github.com/trainhub/trainhub-server/internal/billing"
	"github.com/trainhub/trainhub-server/internal/config"
	"github.com/trainhub/trainhub-server/internal/guard"
	"github.com/trainhub/trainhub-server/internal/mailer"
	"github.com/trainhub/trainhub-server/internal/models"
	"github.com/trainhub/trainhub-server/internal/storage"
	"github.com/trainhub/trainhub-server/internal/validation"
)

// RESTServer represents the REST API server
type RESTServer struct {
	config    *config.Config
	store     storage.Store
	auth      *auth.JWTManager
	resolver  *auth.Resolver
	validator *validation.Validator
	mailer    mailer.Mailer
	router    chi.Router
	server    *http.Server

	tenants     *guard.Scope[*models.Tenant]
	users       *guard.Scope[*models.User]
	trainings   *guard.Scope[*models.Training]
	assignments *guard.Scope[*models.Assignment]

	billing *billing.Orchestrator
	webhook http.Handler
}

// NewRESTServer creates a new REST API server
func NewRESTServer(cfg *config.Config, store storage.Store, m mailer.Mailer, orchestrator *billing.Orchestrator, webhook http.Handler) *RESTServer {
	jwtManager := auth.NewJWTManager(&cfg.JWT)

	s := &RESTServer{
		config:    cfg,
		store:     store,
		auth:      jwtManager,
		resolver:  auth.NewResolver(jwtManager, store),
		validator: validation.NewValidator(),
		mailer:    m,
		router:    chi.NewRouter(),

		tenants:   guard.NewScope[*models.Tenant](storage.TenantRepo{S: store}, guard.WithTenantResource[*models.Tenant]()),
		users:     guard.NewScope[*models.User](storage.UserRepo{S: store}),
		trainings: guard.NewScope[*models.Training](storage.TrainingRepo{S: store}),
		assignments: guard.NewScope[*models.Assignment](storage.AssignmentRepo{S: store},
			guard.WithCreateCheck[*models.Assignment](guard.AssignmentCreateCheck(store))),

		billing: orchestrator,
		webhook: webhook,
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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// Router exposes the configured router, mainly for tests.
func (s *RESTServer) Router() chi.Router {
	return s.router
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

// identityMiddleware resolves the caller identity from the Authorization
// header. Resolution never fails a request; anonymous callers are rejected
// later by the operations that need a tenant.
func (s *RESTServer) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident := s.resolver.Resolve(r.Context(), r.Header.Get("Authorization"))
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), ident)))
	})
}

// requireTenant extracts the identity and rejects callers without a resolved
// tenant.
func (s *RESTServer) requireTenant(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	ident := auth.IdentityFrom(r.Context())
	if !ident.HasTenant() {
		s.respondError(w, http.StatusUnauthorized, "authentication required")
		return ident, false
	}
	return ident, true
}

// requireAuthor additionally rejects callers without the author role.
func (s *RESTServer) requireAuthor(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	ident, ok := s.requireTenant(w, r)
	if !ok {
		return ident, false
	}
	if ident.Role != models.RoleAuthor {
		s.respondError(w, http.StatusForbidden, "author role required")
		return ident, false
	}
	return ident, true
}

// parsePage reads pagination query parameters.
func parsePage(r *http.Request) storage.Page {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	return storage.Page{Page: page, PageSize: pageSize}.Normalize()
}

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondAppError maps a domain error to its HTTP status.
func (s *RESTServer) respondAppError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
		s.respondError(w, status, "internal error")
		return
	}
	s.respondError(w, status, err.Error())
}
