package http

import (
	"context"
	"net/http"
	"time"

	"conversation-system/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type Router struct {
	chi.Router
}

func NewRouter(rateLimit middleware.RateLimitConfig) *Router {
	r := chi.NewRouter()

	// Use chi middleware with aliases to avoid conflicts
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.RateLimit(rateLimit))
	r.Use(middleware.Logging)

	return &Router{r}
}

// RegisterConversationRoutes registers conversation, message, query and sharing routes
func (r *Router) RegisterConversationRoutes(h *ConversationHandler) {
	h.RegisterRoutes(r)
}

// RegisterAnalyticsRoutes registers analytics routes
func (r *Router) RegisterAnalyticsRoutes(h *AnalyticsHandler) {
	h.RegisterRoutes(r)
}

// RegisterHealthRoutes registers liveness and readiness checks. Readiness
// pings every named dependency.
func (r *Router) RegisterHealthRoutes(deps map[string]Pinger) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := make(map[string]string, len(deps))
		status, code := "ready", http.StatusOK
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				checks[name] = err.Error()
				status, code = "unavailable", http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		writeJSON(w, code, map[string]interface{}{
			"status":    status,
			"checks":    checks,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
}
