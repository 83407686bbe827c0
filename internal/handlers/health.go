package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"folderzip/internal/database"
	"folderzip/internal/metrics"
	"folderzip/internal/storage"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	logger  *zap.Logger
	db      database.Store
	storage storage.Provider
	metrics *metrics.Metrics
	timeout time.Duration
}

// NewHealthHandler creates a new health check handler
func NewHealthHandler(logger *zap.Logger, db database.Store, storageProvider storage.Provider, m *metrics.Metrics) *HealthHandler {
	return &HealthHandler{
		logger:  logger,
		db:      db,
		storage: storageProvider,
		metrics: m,
		timeout: 5 * time.Second,
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health pings the record store and the blob store
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	for _, c := range []struct {
		component string
		check     func(context.Context) error
	}{
		{"database", h.db.Ping},
		{"storage", h.storage.HealthCheck},
	} {
		if err := c.check(ctx); err != nil {
			healthy = false
			checks[c.component] = "unavailable"
			h.metrics.HealthStatus.WithLabelValues(c.component).Set(0)
			h.metrics.HealthChecksFailed.WithLabelValues(c.component).Inc()
			h.logger.Warn("health check failed", zap.String("component", c.component), zap.Error(err))
			continue
		}
		checks[c.component] = "ok"
		h.metrics.HealthStatus.WithLabelValues(c.component).Set(1)
	}

	resp := healthResponse{Status: "healthy", Checks: checks}
	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		resp.Status = "unhealthy"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}
