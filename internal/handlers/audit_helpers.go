package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDKey = "request_id"

// requestID returns the request's correlation id, minting one when the
// client sent no X-Request-ID. The id is cached on the context so every
// audit envelope of one request carries the same value.
func requestID(c *gin.Context) string {
	if cached, ok := c.Get(requestIDKey); ok {
		if id, ok := cached.(string); ok && id != "" {
			return id
		}
	}

	id := c.GetHeader("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	return id
}

// auditUserID reports who acted, for the audit trail. Only requests
// that passed the auth middleware carry a user id.
func auditUserID(c *gin.Context) *int64 {
	userID := c.GetInt("userID")
	if userID == 0 {
		return nil
	}
	id := int64(userID)
	return &id
}
