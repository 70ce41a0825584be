package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/llm-scheduler/handlers"
)

// Handlers bundles everything the router mounts
type Handlers struct {
	Health      *handlers.HealthHandler
	Schedule    *handlers.ScheduleHandler
	Observation *handlers.ObservationHandler
	Backend     *handlers.BackendHandler
}

// SetupRoutes configures all application routes and middleware
func SetupRoutes(h Handlers, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health.HandleHealth)
	r.Get("/readyz", h.Health.HandleReadiness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/schedule", h.Schedule.HandleSchedule)
		r.Post("/observations", h.Observation.HandleObservation)

		r.Route("/backends", func(r chi.Router) {
			r.Get("/", h.Backend.HandleList)
			r.Put("/{id}/availability", h.Backend.HandleSetAvailability)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","message":"Route not found"}`))
	})

	return r
}
