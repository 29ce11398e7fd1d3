package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// CheckHealth handles GET /api/v1/health. Each configured probe is checked;
// any failure degrades the overall status.
func (h *Handler) CheckHealth(c *gin.Context) {
	status := HealthStatus{
		Status:     "ok",
		Components: make(map[string]string, len(h.health)),
	}

	for _, probe := range h.health {
		if err := probe.Check(c.Request.Context()); err != nil {
			status.Status = "degraded"
			status.Components[probe.Name] = err.Error()
			continue
		}
		status.Components[probe.Name] = "ok"
	}

	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
