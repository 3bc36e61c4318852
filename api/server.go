/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging through zerolog
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/legal-entities/*  Legal entities, milestones and schedules
  /api/holidays/*        Country and entity holidays
  /api/working-days/*    Working weeks and ad-hoc walks
  /api/scenarios/*       Demo scenarios
  /api/reset             Database reset (dev only)
  /metrics               Prometheus metrics

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/warp/payroll-schedules/metrics"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/legal-entities", func(r chi.Router) {
			r.Get("/", h.ListLegalEntities)
			r.Post("/", h.CreateLegalEntity)
			r.Get("/{id}", h.GetLegalEntity)
			r.Get("/{id}/milestones", h.GetMilestones)
			r.Put("/{id}/milestones", h.ReplaceMilestones)
			r.Post("/{id}/schedules/generate", h.GenerateSchedules)
			r.Get("/{id}/schedules", h.ListSchedules)
			r.Get("/{id}/schedules/export", h.ExportSchedules)
		})

		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Delete("/{id}", h.DeleteHoliday)
		})

		r.Route("/working-days", func(r chi.Router) {
			r.Post("/walk", h.Walk)
			r.Get("/{country}", h.GetWorkingDays)
			r.Put("/{country}", h.SetWorkingDays)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		r.Post("/reset", h.ResetDatabase)
	})

	return r
}

// requestLogger logs one line per request with the request id.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			defer func() {
				logger.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("took", time.Since(started)).
					Msg("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
