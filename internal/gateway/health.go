package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/rfontaine/sundog/internal/provider"
)

// healthProbeTimeout bounds the provider probe on each health request.
const healthProbeTimeout = 3 * time.Second

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"` // "ok" or "degraded"
	Model    string `json:"model"`
	Uptime   string `json:"uptime"`
	Provider string `json:"provider"` // "ok", "degraded", or "unchecked"
}

// handleHealth reports daemon liveness. The provider is actively probed
// when it supports health checks; a failing probe degrades the status
// but still returns the report.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Model:    g.provider.ModelName(),
			Uptime:   time.Since(g.startedAt).Truncate(time.Second).String(),
			Provider: "unchecked",
		}

		if hc, ok := g.provider.(provider.HealthChecker); ok {
			probeCtx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
			defer cancel()

			if err := hc.HealthCheck(probeCtx); err != nil {
				resp.Status = "degraded"
				resp.Provider = "degraded"
				g.logger.Warn("provider health probe failed", "error", err)
			} else {
				resp.Provider = "ok"
			}
		}

		status := http.StatusOK
		if resp.Status == "degraded" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
