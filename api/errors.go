package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aliendabz/evalqueue"
)

// ErrorResponse is the body of every non-2xx reply except cancel and
// retry conflicts.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// OKResponse answers cancel and retry.
type OKResponse struct {
	OK bool `json:"ok"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, evalqueue.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, evalqueue.ErrMissingUser):
		return http.StatusUnauthorized
	case errors.Is(err, evalqueue.ErrEmptySubmission),
		errors.Is(err, evalqueue.ErrInvalidPriority):
		return http.StatusBadRequest
	case errors.Is(err, evalqueue.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, evalqueue.ErrQueueStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     err.Error(),
		RequestID: c.GetString(requestIDKey),
	})
}
