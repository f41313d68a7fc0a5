package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/farkleio/tablecore/internal/store"
)

// Router builds the chi.Router serving every HTTP route, grouping
// session routes at the root and admin routes under "/admin".
func Router(sessions *SessionHandler, admin *AdminHandler, health *HealthHandler) chi.Router {
	r := chi.NewRouter()
	health.RegisterHealth(r)
	sessions.RegisterRoutes(r)
	admin.RegisterRoutes(r)
	return r
}

// HealthHandler reports liveness of the store's persistence adapter.
type HealthHandler struct {
	Store *store.Store
}

// NewHealthHandler wires a HealthHandler.
func NewHealthHandler(st *store.Store) *HealthHandler {
	return &HealthHandler{Store: st}
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// Health returns liveness and persistence-adapter readiness.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := map[string]interface{}{"status": "healthy", "checks": map[string]string{"api": "ok"}}
	code := http.StatusOK

	if pinger, ok := h.Store.Adapter.(interface{ Ping(context.Context) error }); ok {
		if err := pinger.Ping(ctx); err != nil {
			status["status"] = "degraded"
			status["checks"].(map[string]string)["store"] = "unreachable"
			code = http.StatusServiceUnavailable
		} else {
			status["checks"].(map[string]string)["store"] = "ok"
		}
	}

	JSON(w, code, status)
}
