package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ai-shifu/shifu-backend/internal/apierr"
	"github.com/ai-shifu/shifu-backend/internal/logger"
)

// writeError maps an error to its API status and stable code. Unclassified
// errors become an opaque 500 so internals never leak to clients.
func writeError(c *gin.Context, log *logger.Logger, err error) {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		c.JSON(ae.Status, gin.H{"error": ae.Code})
		return
	}
	log.Error("Unhandled error", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
}
