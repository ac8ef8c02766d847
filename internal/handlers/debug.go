package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rtchat-service/internal/telemetry"
)

// RegisterDebugRoutes wires endpoints that exist only when DEBUG_ROUTES
// is set. They exercise side channels that are hard to observe from the
// chat surface itself, currently just the audit pipeline.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.POST("/debug/audit", func(c *gin.Context) {
		emitter.Emit(c.Request.Context(), "INFO", "audit pipeline check", requestID(c), auditUserID(c))
		c.JSON(http.StatusAccepted, gin.H{"status": "emitted", "request_id": requestID(c)})
	})
}
