package handlers

import (
	"net/http"

	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/velsoria/argus/internal/camera"
)

// AlertHandler receives detection alerts posted by the worker. The route is
// guarded by the internal-key middleware, not the user auth middleware.
type AlertHandler struct {
	log         *slog.Logger
	coordinator *camera.Coordinator
}

func NewAlertHandler(log *slog.Logger, coordinator *camera.Coordinator) *AlertHandler {
	return &AlertHandler{log: log, coordinator: coordinator}
}

func (h *AlertHandler) IngestAlert(c *gin.Context) {
	var in camera.AlertInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json payload")
		return
	}

	alert, err := h.coordinator.IngestAlert(c.Request.Context(), in)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, alert)
}
