package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tadaa_concierge/pkg"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable"`
	RequestID string `json:"request_id,omitempty"`
}

// StatusFor maps the error taxonomy onto HTTP status codes
func StatusFor(err error) int {
	switch {
	case errors.Is(err, pkg.ErrConversationNotFound), errors.Is(err, pkg.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, pkg.ErrAmbiguousMatch):
		return http.StatusConflict
	case errors.Is(err, pkg.ErrItemIncomplete),
		errors.Is(err, pkg.ErrUnknownKind),
		errors.Is(err, pkg.ErrDeletionNotConfirmed),
		errors.Is(err, pkg.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, pkg.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes err with its mapped status and aborts the chain
func HandleError(c *gin.Context, err error, message string) {
	c.AbortWithStatusJSON(StatusFor(err), ErrorResponse{
		Error:     err.Error(),
		Message:   message,
		Retryable: pkg.IsRetryable(err),
		RequestID: GetRequestID(c),
	})
}

// HandleBadRequest rejects an unreadable request body
func HandleBadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error:     err.Error(),
		Message:   "invalid request body",
		RequestID: GetRequestID(c),
	})
}
