package errors

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimitError represents a 429 produced by this relay's own throttling.
// It carries is_error so the chat page renders it like any other failed turn,
// and rate_limit_source to tell it apart from upstream provider 429s.
type RateLimitError struct {
	Error           string    `json:"error"`
	Response        string    `json:"response"`
	IsError         bool      `json:"is_error"`
	RateLimitSource string    `json:"rate_limit_source"`
	Limit           int       `json:"limit_per_minute"`
	RetryAt         time.Time `json:"retry_at"`
}

// AbortWithRateLimit sends a 429 response with a Retry-After header and aborts the request.
func AbortWithRateLimit(c *gin.Context, err *RateLimitError) {
	if wait := time.Until(err.RetryAt); wait > 0 {
		c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, err)
}

// SessionThrottled creates a RateLimitError for a session sending chat turns too quickly.
func SessionThrottled(limit int, retryAt time.Time) *RateLimitError {
	msg := "Too many messages in a short time. Please wait a moment and try again."
	return &RateLimitError{
		Error:           msg,
		Response:        msg,
		IsError:         true,
		RateLimitSource: "session",
		Limit:           limit,
		RetryAt:         retryAt,
	}
}
