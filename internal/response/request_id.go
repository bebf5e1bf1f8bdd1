package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyRequestID is the Gin context key the envelope metadata reads the
// request ID from.
const ContextKeyRequestID = "request_id"

// RequestIDMiddleware tags every request with an ID so a session operation
// can be traced across handler, service and worker logs. An X-Request-ID
// supplied by the caller is kept; otherwise one is minted.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, reqID)
		c.Header("X-Request-ID", reqID)
		c.Next()
	}
}
