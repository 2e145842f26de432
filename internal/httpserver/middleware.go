package httpserver

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tadaa_concierge/internal/logger"
)

const (
	requestIDHeader = "X-Request-ID"
	userIDHeader    = "X-User-ID"

	requestIDKey = "request_id"
	userIDKey    = "user_id"
)

// RequestID ensures every request has an ID, echoed in the response header
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// UserIdentity reads the caller from X-User-ID, falling back to defaultUserID
func UserIdentity(defaultUserID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(userIDHeader))
		if userID == "" {
			userID = defaultUserID
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// AccessLog writes one zerolog line per request
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info().
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}

// GetRequestID returns the request ID bound by RequestID
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// GetUserID returns the caller bound by UserIdentity
func GetUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
