package handlers

import (
	"context"
	"encoding/json"
	"time"

	xhttp "github.com/nimasrn/submit-logger/pkg/http"
	"github.com/nimasrn/submit-logger/pkg/logger"
)

const healthCheckTimeout = 3 * time.Second

type HealthService interface {
	Health(ctx context.Context) error
}

type HealthHandler struct {
	healthService HealthService
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func RegisterHealthRoutes(r *xhttp.Router, h *HealthHandler) {
	r.GET("/health", h.GetHealth)
}

func NewHealthHandler(healthService HealthService) *HealthHandler {
	return &HealthHandler{
		healthService: healthService,
	}
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	c, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	res := healthResponse{Status: "ok"}
	ctx.SetStatusCode(xhttp.StatusOK)
	if err := h.healthService.Health(c); err != nil {
		logger.Warn("health check failed", "error", err)
		res = healthResponse{Status: "unavailable", Error: err.Error()}
		ctx.SetStatusCode(xhttp.StatusServiceUnavailable)
	}

	body, _ := json.Marshal(res)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
