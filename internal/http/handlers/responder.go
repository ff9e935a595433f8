package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/velsoria/argus/internal/camera"
	"github.com/velsoria/argus/internal/storage"
)

func writeJSON(c *gin.Context, status int, payload interface{}) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}

func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// writeDomainError maps coordinator/storage errors onto HTTP statuses:
// validation failures to 400, missing records to 404, the rest to 500.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, camera.ErrInvalidInput):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(c, http.StatusNotFound, "not found")
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
