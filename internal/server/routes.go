// Package server wires HTTP handlers into a chi router for the relay.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes returns the relay's HTTP handler: the WebSocket endpoints,
// the REST API and the test page.
func SetupRoutes(hub *Hub, api *API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", HealthHandler)
	r.Get("/test", TestPageHandler)

	r.HandleFunc("/ws", hub.WebSocketHandler(RoleUnclassified))
	r.HandleFunc("/ws/extension", hub.WebSocketHandler(RoleProducer))
	r.HandleFunc("/ws/dashboard", hub.WebSocketHandler(RoleObserver))

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: hub.cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Get("/health", api.Health)
		r.Get("/stats", api.Stats)
		r.Post("/extract", api.RequestExtraction)

		r.Get("/schedules", api.RecentSchedules)
		r.Get("/schedules/today", api.TodaySchedule)
		r.Get("/schedules/{fecha}", api.ScheduleByDate)

		r.Get("/classes", api.ClassesByDateRange)
		r.Get("/classes/date/{fecha}", api.ClassesByDate)
		r.Get("/classes/instructor/{instructor}", api.ClassesByInstructor)
	})
	return r
}
