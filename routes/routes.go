package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/threatprofile-gateway/app"
	"github.com/upb/threatprofile-gateway/internal/observability"
	gatewaymw "github.com/upb/threatprofile-gateway/middleware"
	"github.com/upb/threatprofile-gateway/utils"
)

// requestTimeout bounds every request except the session watch stream
const requestTimeout = 60 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(deps.Metrics.Instrument)

	// The dashboard calls the API with credentials, so origins are explicit.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(deps.Config.Cognito.FrontEndURL),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Cache-Control", "Last-Event-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	// OAuth2 auth endpoints (Cognito)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Get("/auth/login", deps.AuthHandler.HandleLogin)
		r.Get("/auth/callback", deps.AuthHandler.HandleCallback)
		r.Get("/auth/logout", deps.AuthHandler.HandleLogout)
		// Cognito Hosted UI default callback path
		r.Get("/oauth2/idpresponse", deps.AuthHandler.HandleCallback)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.Timeout(requestTimeout)).Get("/session", deps.SessionHandler.HandleSession)
		// Long-lived stream; ends on a redirect decision or client disconnect.
		r.Get("/session/watch", deps.SessionHandler.HandleWatch)
		r.NotFound(notFoundJSON)
	})

	// Guarded dashboard pages
	for _, named := range deps.Routes.Routes() {
		guarded := r.With(deps.GuardMiddleware.Protect(named))
		guarded.Handle(named.Prefix, deps.PageProxy)
		guarded.Handle(strings.TrimSuffix(named.Prefix, "/")+"/*", deps.PageProxy)
	}

	// Public pages: the login screen and the dashboard shell and assets
	r.Get(deps.Config.Guard.LoginPath, deps.PageProxy.ServeHTTP)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if gatewaymw.WantsJSON(r) {
			notFoundJSON(w, r)
			return
		}
		deps.PageProxy.ServeHTTP(w, r)
	})

	return r
}

func notFoundJSON(w http.ResponseWriter, _ *http.Request) {
	_ = utils.WriteNotFound(w, "endpoint not found")
}

// allowedOrigins returns the origin of the dashboard frontend
func allowedOrigins(frontEndURL string) []string {
	if frontEndURL == "" {
		return []string{"http://localhost:*"}
	}
	return []string{strings.TrimSuffix(frontEndURL, "/")}
}
