// Package api assembles the HTTP surface of the service.
package api

import (
	"net/http"

	"github.com/familiaschurch/receipt-validator/internal/api/handlers"
	"github.com/familiaschurch/receipt-validator/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterConfig holds what the router needs.
type RouterConfig struct {
	Validation     *handlers.ValidationHandler
	Jobs           *handlers.JobsHandler
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer
	Log            zerolog.Logger
}

// NewRouter builds the routes:
//
//	POST /validar-pix          synchronous validation, always 200
//	POST /validar-pix/async    enqueue, 202
//	GET  /api/jobs             list jobs
//	GET  /api/jobs/{id}        job status and result
//	GET  /health
//	GET  /metrics
func NewRouter(c RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID(c.Log),
		middleware.Logger(c.Log),
		middleware.CORS(c.AllowedOrigins),
	)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(c.Log, c.Validation.Respond))
		r.Post("/validar-pix", c.Validation.Validate)
		r.Post("/validar-pix/async", c.Validation.Enqueue)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(c.Log, nil))
		if c.Jobs != nil {
			r.Get("/api/jobs", c.Jobs.ListJobs)
			r.Get("/api/jobs/{id}", c.Jobs.GetJob)
		}
		r.Get("/health", handlers.Health)
		if c.Gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(c.Gatherer, promhttp.HandlerOpts{}))
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}
