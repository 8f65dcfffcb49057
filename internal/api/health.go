package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/drone-gateway/internal/dispatch"
	"github.com/nerrad567/drone-gateway/internal/worker"
)

// componentCheckTimeout bounds each optional component check.
const componentCheckTimeout = 2 * time.Second

// Health statuses.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthDown     = "down"
)

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Timestamp     string            `json:"timestamp"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Goroutines    int               `json:"goroutines"`
	Devices       int               `json:"devices"`
	WSClients     int               `json:"websocket_clients"`
	Dispatcher    dispatch.Stats    `json:"dispatcher"`
	Workers       worker.Stats      `json:"workers"`
	Components    map[string]string `json:"components,omitempty"`
}

// handleHealth reports dispatcher and pool state. It answers 503 when the
// dispatcher is not running and "degraded" when an optional component fails
// its check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        HealthOK,
		Version:       s.version,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		Devices:       s.registry.Count(""),
		WSClients:     s.hub.ClientCount(),
		Dispatcher:    s.dispatcher.Stats(),
		Workers:       s.pool.Stats(),
	}

	if len(s.components) > 0 {
		resp.Components = make(map[string]string, len(s.components))
		for name, c := range s.components {
			ctx, cancel := context.WithTimeout(r.Context(), componentCheckTimeout)
			err := c.HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Components[name] = err.Error()
				resp.Status = HealthDegraded
				continue
			}
			resp.Components[name] = HealthOK
		}
	}

	status := http.StatusOK
	if !resp.Dispatcher.Running {
		resp.Status = HealthDown
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
