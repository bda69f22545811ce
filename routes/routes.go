package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/taskni/llm-gateway/app"
	"github.com/taskni/llm-gateway/handlers"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware. No request timeout here: streaming responses can
	// legitimately outlive any fixed budget, and provider attempts carry
	// their own deadlines.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	chatHandler := handlers.NewChatHandler(deps.Gateway, deps.Logger)
	askHandler := handlers.NewAskHandler(deps.AnswerService, deps.Logger)
	healthHandler := handlers.NewHealthHandler(deps.Providers, deps.Breakers)

	// Health check endpoints
	r.Get("/healthz", healthHandler.HandleHealthz)
	r.Get("/readyz", healthHandler.HandleReadyz)

	// Prometheus metrics
	if deps.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(deps.PromRegistry, promhttp.HandlerOpts{}))
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", chatHandler.HandleChat)
		r.Post("/ask", askHandler.HandleAsk)
		r.Get("/cache/stats", askHandler.HandleCacheStats)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
