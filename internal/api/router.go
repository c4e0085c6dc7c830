package api

import (
	"net/http"

	"github.com/bcnelson/stackplane/internal/api/handler"
	"github.com/bcnelson/stackplane/internal/api/middleware"
	"github.com/bcnelson/stackplane/internal/auth"
	"github.com/bcnelson/stackplane/internal/metrics"
	"github.com/bcnelson/stackplane/internal/updates"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Options configures the router.
type Options struct {
	BootstrapKey string
	// Verifier enables OIDC bearer tokens when set.
	Verifier auth.TokenVerifier
	Hub      *updates.Hub
	Metrics  *metrics.Metrics
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(deps *handler.Deps, opts Options) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging)

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	authenticate := middleware.Auth(deps.Store, opts.BootstrapKey, opts.Verifier)

	// Update stream (no Content-Type middleware - upgrades to websocket)
	if opts.Hub != nil {
		r.With(authenticate).Get("/ws/update", func(w http.ResponseWriter, r *http.Request) {
			opts.Hub.ServeWS(w, r, middleware.GetUserFromContext(r.Context()))
		})
	}

	read := handler.NewRPCHandler(handler.NewReadRegistry(deps))
	execute := handler.NewRPCHandler(handler.NewExecuteRegistry(deps))
	write := handler.NewRPCHandler(handler.NewWriteRegistry(deps))

	// RPC routes (auth required, JSON Content-Type)
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentType)
		r.Use(authenticate)

		r.Post("/read", read.ServeHTTP)
		r.Get("/read", read.Types)
		r.Post("/execute", execute.ServeHTTP)
		r.Get("/execute", execute.Types)
		r.Post("/write", write.ServeHTTP)
		r.Get("/write", write.Types)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentType)
		r.Use(authenticate)

		// API Keys
		keyHandler := handler.NewAPIKeyHandler(deps.Store)
		r.Post("/keys", keyHandler.Create)
		r.Get("/keys", keyHandler.List)
		r.Delete("/keys/{id}", keyHandler.Delete)
	})

	return r
}
