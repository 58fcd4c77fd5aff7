package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the router.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/pipelines", func(r chi.Router) {
			r.Get("/", h.ListPipelines)
			r.Get("/running", h.RunningPipelines)
			r.Post("/run-batch", h.RunBatch)
			r.Post("/{name}/run", h.RunPipeline)
		})

		r.Get("/executions", h.ExecutionHistory)
		r.Get("/metrics", h.PipelineMetrics)

		r.Route("/queue", func(r chi.Router) {
			r.Get("/stats", h.QueueStats)
			r.Post("/items/{id}/requeue", h.RequeueItem)
		})

		r.Get("/scheduler/stats", h.SchedulerStats)

		r.Route("/review", func(r chi.Router) {
			r.Get("/", h.ReviewQueue)
			r.Post("/{id}/approve", h.ApproveTemplate)
			r.Post("/{id}/reject", h.RejectTemplate)
		})

		r.Route("/scan", func(r chi.Router) {
			r.Post("/generation", h.ScanGeneration)
			r.Post("/dispatch", h.ScanDispatch)
		})
	})

	return r
}
