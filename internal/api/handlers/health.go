package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const healthTimeout = 3 * time.Second

// Pinger is anything whose reachability can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	backend Pinger
	journal Pinger
	redis   *redis.Client
}

// NewHealthHandler builds the health checks. journal and redis may be nil
// when those features are disabled.
func NewHealthHandler(backend, journal Pinger, redis *redis.Client) *HealthHandler {
	return &HealthHandler{backend: backend, journal: journal, redis: redis}
}

type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	services := make(map[string]string)
	status := "healthy"

	check := func(name string, err error) {
		if err != nil {
			services[name] = "unhealthy"
			status = "unhealthy"
			return
		}
		services[name] = "healthy"
	}

	// an unreachable backend is reported but does not fail the check
	if h.backend != nil {
		if err := h.backend.Ping(ctx); err != nil {
			services["backend"] = "unreachable"
		} else {
			services["backend"] = "healthy"
		}
	}

	if h.journal != nil {
		check("journal", h.journal.Ping(ctx))
	}

	if h.redis != nil {
		check("redis", h.redis.Ping(ctx).Err())
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:   status,
		Services: services,
	})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
