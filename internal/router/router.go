package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/picthaisky/english-speaking-coach/internal/handlers"
	"github.com/picthaisky/english-speaking-coach/internal/metrics"
	"github.com/picthaisky/english-speaking-coach/internal/middleware"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Sessions    *handlers.SessionHandler
	Recordings  *handlers.RecordingHandler
	Progress    *handlers.ProgressHandler
	WebSocket   http.HandlerFunc
	SubmitLimit func(http.Handler) http.Handler
	FrontendURL string
	Checks      map[string]HealthCheck
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(d.FrontendURL))

	r.Get("/health", health(d.Checks))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Session Routes ────
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", d.Sessions.Start)
			r.Get("/users/{userId}", d.Sessions.ListByUser)
			r.Get("/{id}", d.Sessions.Get)
			r.Post("/{id}/end", d.Sessions.End)
			r.Get("/{id}/recordings", d.Sessions.ListRecordings)
			r.Get("/{id}/summary", d.Sessions.Summary)
		})

		// ──── Recording Routes ────
		r.Route("/recordings", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if d.SubmitLimit != nil {
					r.Use(d.SubmitLimit)
				}
				r.Post("/", d.Recordings.Submit)
			})
			r.Get("/{id}", d.Recordings.Get)
			r.Get("/{id}/analysis", d.Recordings.Analysis)
		})

		// ──── Progress Routes ────
		r.Route("/progress/users/{userId}", func(r chi.Router) {
			r.Get("/weekly", d.Progress.Weekly)
			r.Get("/monthly", d.Progress.Monthly)
			r.Get("/history", d.Progress.History)
			r.Post("/snapshot", d.Progress.Snapshot)
		})

		// ──── WebSocket ────
		if d.WebSocket != nil {
			r.Get("/ws", d.WebSocket)
		}
	})

	return r
}

func health(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": overall,
			"checks": results,
		})
	}
}
