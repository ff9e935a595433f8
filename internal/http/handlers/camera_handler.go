package handlers

import (
	"context"
	"net/http"

	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/velsoria/argus/internal/camera"
	"github.com/velsoria/argus/internal/http/middleware"
	"github.com/velsoria/argus/internal/storage"
)

// CameraStore is the slice of storage the camera handler reads directly;
// every state transition goes through the coordinator instead.
type CameraStore interface {
	CreateCamera(ctx context.Context, cam *storage.Camera) error
	Camera(ctx context.Context, id string) (*storage.Camera, error)
	CamerasByUser(ctx context.Context, userID string) ([]*storage.Camera, error)
	AlertsByCamera(ctx context.Context, cameraID string, limit int) ([]*storage.Alert, error)
}

type CameraHandler struct {
	log         *slog.Logger
	store       CameraStore
	coordinator *camera.Coordinator
}

func NewCameraHandler(log *slog.Logger, store CameraStore, coordinator *camera.Coordinator) *CameraHandler {
	return &CameraHandler{log: log, store: store, coordinator: coordinator}
}

type createCameraRequest struct {
	Name             string  `json:"name" binding:"required"`
	RtspURL          string  `json:"rtspUrl" binding:"required,url"`
	Location         *string `json:"location"`
	Enabled          *bool   `json:"enabled"`
	DetectionEnabled *bool   `json:"detectionEnabled"`
	FpsTarget        *int    `json:"fpsTarget" binding:"omitempty,min=1,max=60"`
}

type updateCameraRequest struct {
	Name             *string `json:"name" binding:"omitempty,min=1"`
	RtspURL          *string `json:"rtspUrl" binding:"omitempty,url"`
	Location         *string `json:"location"`
	Enabled          *bool   `json:"enabled"`
	DetectionEnabled *bool   `json:"detectionEnabled"`
	FpsTarget        *int    `json:"fpsTarget" binding:"omitempty,min=1,max=60"`
}

type cameraDetailResponse struct {
	*storage.Camera
	Alerts []*storage.Alert `json:"alerts"`
}

func (h *CameraHandler) ListCameras(c *gin.Context) {
	cams, err := h.store.CamerasByUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.log.Error("list cameras failed", slog.String("err", err.Error()))
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	if cams == nil {
		cams = []*storage.Camera{}
	}
	writeJSON(c, http.StatusOK, map[string]any{"items": cams})
}

func (h *CameraHandler) GetCamera(c *gin.Context) {
	id := c.Param("id")
	cam, err := h.store.Camera(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	alerts, err := h.store.AlertsByCamera(c.Request.Context(), id, 10)
	if err != nil {
		h.log.Error("load recent alerts failed", slog.String("err", err.Error()))
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	if alerts == nil {
		alerts = []*storage.Alert{}
	}
	writeJSON(c, http.StatusOK, cameraDetailResponse{Camera: cam, Alerts: alerts})
}

func (h *CameraHandler) CreateCamera(c *gin.Context) {
	var req createCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid camera payload")
		return
	}

	cam := &storage.Camera{
		UserID:           middleware.UserID(c),
		Name:             req.Name,
		RtspURL:          req.RtspURL,
		Enabled:          true,
		DetectionEnabled: true,
		FpsTarget:        8,
		Status:           storage.CameraStatusStopped,
	}
	if req.Location != nil {
		cam.Location = *req.Location
	}
	if req.Enabled != nil {
		cam.Enabled = *req.Enabled
	}
	if req.DetectionEnabled != nil {
		cam.DetectionEnabled = *req.DetectionEnabled
	}
	if req.FpsTarget != nil {
		cam.FpsTarget = *req.FpsTarget
	}

	if err := h.store.CreateCamera(c.Request.Context(), cam); err != nil {
		h.log.Error("create camera failed", slog.String("err", err.Error()))
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusCreated, cam)
}

func (h *CameraHandler) UpdateCamera(c *gin.Context) {
	var req updateCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid camera payload")
		return
	}

	cam, err := h.coordinator.Update(c.Request.Context(), c.Param("id"), storage.CameraUpdate{
		Name:             req.Name,
		RtspURL:          req.RtspURL,
		Location:         req.Location,
		Enabled:          req.Enabled,
		DetectionEnabled: req.DetectionEnabled,
		FpsTarget:        req.FpsTarget,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, cam)
}

func (h *CameraHandler) DeleteCamera(c *gin.Context) {
	if err := h.coordinator.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ok": true})
}

func (h *CameraHandler) StartCamera(c *gin.Context) {
	if err := h.coordinator.Start(c.Request.Context(), c.Param("id")); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ok": true})
}

func (h *CameraHandler) StopCamera(c *gin.Context) {
	if err := h.coordinator.Stop(c.Request.Context(), c.Param("id")); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ok": true})
}

func (h *CameraHandler) ListAlerts(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.store.Camera(c.Request.Context(), id); err != nil {
		writeDomainError(c, err)
		return
	}
	alerts, err := h.store.AlertsByCamera(c.Request.Context(), id, 50)
	if err != nil {
		h.log.Error("list alerts failed", slog.String("err", err.Error()))
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	if alerts == nil {
		alerts = []*storage.Alert{}
	}
	writeJSON(c, http.StatusOK, map[string]any{"items": alerts})
}
