/**
 * @description
 * This file sets up the HTTP router for the staff portal using go-chi/chi.
 * Public routes cover sign-in and the navigation guard; everything else sits
 * behind the bearer token middleware. The session event stream is mounted
 * outside the request timeout so long-lived connections are not cut off.
 */
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig toggles optional surfaces of the router.
type RouterConfig struct {
	AllowedOrigins     []string
	EnableSampleRoutes bool
	RequestTimeout     time.Duration

	// AuthLimiter caps sign-in requests per client address when set.
	AuthLimiter  RequestLimiter
	AuthIPLimit  int
	AuthIPWindow time.Duration
}

// NewRouter creates a new Chi router and registers the portal routes.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"https://*", "http://*"}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.AuthIPWindow <= 0 {
		cfg.AuthIPWindow = time.Minute
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	r.Get("/health", h.handleHealth)

	authenticate := AuthMiddleware(h.tokens, h.revocations, h.logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RealIP)
			r.Use(IPRateLimit(cfg.AuthLimiter, "auth_ip", cfg.AuthIPLimit, cfg.AuthIPWindow, h.logger))
			r.Post("/api/auth/send-otp", h.handleSendOTP)
			r.Post("/api/auth/verify-otp", h.handleVerifyOTP)
		})
		r.Get("/api/session/route", h.handleRoute)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Get("/api/session", h.handleGetSession)
			r.Post("/api/auth/sign-out", h.handleSignOut)

			r.Get("/api/onboarding", h.handleGetOnboarding)
			r.Post("/api/onboarding/{step}", h.handleAdvanceOnboarding)

			r.Route("/api/daily-tasks", func(r chi.Router) {
				r.Get("/", h.handleGetDailyTask)
				r.Put("/", h.handlePutDailyTask)
				r.Patch("/{date}/{field}", h.handlePatchDailyTaskField)
				r.Post("/{date}/clock-in", h.handleClockIn)
				r.Post("/{date}/clock-out", h.handleClockOut)
				r.Post("/{date}/mood", h.handleRecordMood)
				r.Post("/{date}/vitals", h.handleRecordVitals)
				if cfg.EnableSampleRoutes {
					r.Post("/sample", h.handleSampleDailyTask)
				}
			})
			r.Post("/api/tasks/add/{userId}", h.handleAddTask)
			r.Get("/api/tasks/range", h.handleTaskRange)

			r.Get("/api/staff", h.handleGetStaff)
			r.Post("/api/job", h.handleListJobs)
			r.Get("/api/job/{jobId}", h.handleGetJob)
			if cfg.EnableSampleRoutes {
				r.Post("/api/jobs/sample", h.handleSampleJobs)
			}
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Get("/api/session/events", h.handleSessionEvents)
	})

	return r
}
