package handlers

import (
	"net/http"

	"github.com/Yulian302/lfusys-services-uploads/models"
	"github.com/go-chi/render"
)

type ReadinessReporter interface {
	Ready() bool
}

type HealthHandler struct {
	readiness ReadinessReporter
}

func NewHealthHandler(readiness ReadinessReporter) *HealthHandler {
	return &HealthHandler{readiness: readiness}
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, models.StatusResponse{Status: "ok"})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.readiness.Ready() {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, models.StatusResponse{Status: "not ready"})
		return
	}
	render.JSON(w, r, models.StatusResponse{Status: "ready"})
}
