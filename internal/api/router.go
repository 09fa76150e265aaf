// Package api exposes the HTTP interface of the matchday service.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/matchday/internal/auth"
	"example.com/matchday/internal/domain"
)

// Config wires the router's collaborators and limits.
type Config struct {
	Auth              auth.Config
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// DefaultWeeksAhead is used when a generate request omits weeks_ahead.
	DefaultWeeksAhead int
	CompletionBuffer  time.Duration
	Retention         domain.RetentionPolicy
	// Now defaults to time.Now and anchors "upcoming" session listings.
	Now func() time.Time
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	cfg     Config
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, cfg Config) *Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DefaultWeeksAhead == 0 {
		cfg.DefaultWeeksAhead = domain.DefaultHorizonWeeks
	}
	return &Handler{service: service, cfg: cfg}
}

// Router builds the chi router. Rate limit counters belong to the returned
// router, so two routers never share a budget.
func (h *Handler) Router() http.Handler {
	mw := newMiddleware(h.cfg)
	authn := auth.Middleware{Config: h.cfg.Auth, OnError: writeAuthError}

	r := chi.NewRouter()
	r.Use(requestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(observeRequests)
	r.Use(mw.cors)

	r.Get("/healthz", healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.rateLimit)
		r.Use(authn.Wrap)

		r.Route("/activities", func(r chi.Router) {
			r.Post("/", h.createActivity)
			r.Get("/", h.listActivities)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getActivity)
				r.Get("/sessions", h.listSessions)
				r.Post("/sessions/generate", h.generateForActivity)
				r.Put("/subscription", h.subscribe)
				r.Delete("/subscription", h.unsubscribe)
			})
		})

		r.Get("/me/subscriptions", h.listSubscriptions)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Post("/cancel", h.cancelSession)
			h.rosterRoutes(r, domain.RosterSession)
		})

		r.Post("/matches", h.createMatch)
		r.Route("/matches/{id}", func(r chi.Router) {
			r.Get("/", h.getMatch)
			h.rosterRoutes(r, domain.RosterMatch)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authn.RequireAdmin)
			r.Route("/sessions", func(r chi.Router) {
				r.Post("/generate", h.generateAll)
				r.Route("/{id}", func(r chi.Router) { h.adminRosterRoutes(r, domain.RosterSession) })
			})
			r.Route("/matches/{id}", func(r chi.Router) { h.adminRosterRoutes(r, domain.RosterMatch) })
			r.Post("/maintenance/complete", h.completeSessions)
			r.Post("/maintenance/cleanup", h.cleanupSessions)
		})
	})

	return r
}

func (h *Handler) rosterRoutes(r chi.Router, kind domain.RosterKind) {
	r.Get("/stats", h.stats(kind))
	r.Get("/participants", h.participants(kind))
	r.Post("/participants", h.join(kind))
	r.Delete("/participants/me", h.leave(kind))
}

func (h *Handler) adminRosterRoutes(r chi.Router, kind domain.RosterKind) {
	r.Post("/participants", h.forceJoin(kind))
	r.Delete("/participants/{userID}", h.forceLeave(kind))
	r.Post("/replace", h.replace(kind))
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
