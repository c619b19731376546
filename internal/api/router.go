package api

import (
	"crypto/sha256"
	"net/http"

	"github.com/Togather-Foundation/rsvp/internal/api/handlers"
	"github.com/Togather-Foundation/rsvp/internal/api/middleware"
	"github.com/Togather-Foundation/rsvp/internal/audit"
	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Services are the domain dependencies the HTTP layer serves.
type Services struct {
	Events        handlers.EventService
	Accounts      handlers.AccountService
	Authenticator middleware.Authenticator
	Health        *handlers.HealthChecker
}

// BuildInfo is reported by /version.
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
}

// Router is the assembled HTTP handler plus the background state it owns.
type Router struct {
	http.Handler
	limiter *middleware.RateLimiter
}

// Stop releases the rate limiter's cleanup goroutine.
func (r *Router) Stop() {
	r.limiter.Stop()
}

func NewRouter(cfg config.Config, logger zerolog.Logger, svc Services, build BuildInfo) *Router {
	env := cfg.Environment
	auditLogger := audit.NewLoggerWithZerolog(logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimit, env)

	eventsHandler := handlers.NewEventsHandler(svc.Events, auditLogger, env)
	authHandler := handlers.NewAuthHandler(svc.Accounts, auditLogger, env, cfg.Auth.JWTExpiry)

	requireAuth := middleware.RequireAuth(svc.Authenticator, env)
	csrf := middleware.CSRFProtection(csrfKey(cfg.Auth), cfg.IsProduction(), env)

	public := func(h http.HandlerFunc) http.Handler {
		return middleware.WithRateLimitTierHandler(middleware.TierPublic)(limiter.Handler(h))
	}
	login := func(h http.HandlerFunc) http.Handler {
		return middleware.WithRateLimitTierHandler(middleware.TierLogin)(limiter.Handler(h))
	}
	authed := func(h http.HandlerFunc) http.Handler {
		return middleware.WithRateLimitTierHandler(middleware.TierAuthenticated)(
			limiter.Handler(requireAuth(csrf(h))))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", handlers.Healthz())
	if svc.Health != nil {
		mux.Handle("GET /readyz", svc.Health.Readyz())
		mux.Handle("GET /health", svc.Health.Health())
	}
	mux.Handle("GET /version", VersionHandler(build))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.Handle("GET /api/v1/openapi.json", OpenAPIHandler())

	mux.Handle("POST /api/v1/auth/register", login(authHandler.Register))
	mux.Handle("POST /api/v1/auth/login", login(authHandler.Login))
	mux.Handle("POST /api/v1/auth/logout", authed(authHandler.Logout))
	mux.Handle("GET /api/v1/auth/csrf", public(csrfHandler(csrf, authHandler.CSRFToken)))

	mux.Handle("GET /api/v1/events", public(eventsHandler.List))
	mux.Handle("POST /api/v1/events", authed(eventsHandler.Create))
	mux.Handle("GET /api/v1/events/{id}", public(eventsHandler.Get))
	mux.Handle("PUT /api/v1/events/{id}", authed(eventsHandler.Update))
	mux.Handle("DELETE /api/v1/events/{id}", authed(eventsHandler.Delete))
	mux.Handle("POST /api/v1/events/{id}/register", authed(eventsHandler.Register))
	mux.Handle("DELETE /api/v1/events/{id}/register", authed(eventsHandler.Cancel))

	// Route labels come from the mux's matched pattern, so metrics must
	// wrap the mux directly.
	var handler http.Handler = metrics.HTTPMiddleware(mux)
	handler = middleware.RequestSize(maxBodyBytes(cfg.Server))(handler)
	handler = middleware.SecurityHeaders(cfg.IsProduction())(handler)
	handler = middleware.RequestLogging(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.CorrelationID(logger)(handler)

	return &Router{Handler: handler, limiter: limiter}
}

// csrfHandler runs h inside the CSRF middleware so it can read the token.
func csrfHandler(csrf func(http.Handler) http.Handler, h http.HandlerFunc) http.HandlerFunc {
	return csrf(h).ServeHTTP
}

// csrfKey derives the 32-byte gorilla/csrf key. Outside production CSRF_KEY
// may be unset, in which case the JWT secret seeds it.
func csrfKey(cfg config.AuthConfig) []byte {
	seed := cfg.CSRFKey
	if seed == "" {
		seed = cfg.JWTSecret
	}
	sum := sha256.Sum256([]byte(seed))
	return sum[:]
}

func maxBodyBytes(cfg config.ServerConfig) int64 {
	if cfg.MaxBodyBytes > 0 {
		return cfg.MaxBodyBytes
	}
	return middleware.DefaultMaxBodySize
}
