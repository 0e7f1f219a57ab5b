package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIError represents a simple standardized error response.
// Used by the session lifecycle routes for 400, 404 and 500 errors.
type APIError struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewAPIError creates a new APIError with the given message and optional details.
func NewAPIError(message string, details map[string]interface{}) *APIError {
	return &APIError{
		Error:   message,
		Details: details,
	}
}

// AbortWithBadRequest sends a 400 Bad Request response and aborts the request.
func AbortWithBadRequest(c *gin.Context, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(http.StatusBadRequest, NewAPIError(message, details))
}

// AbortWithNotFound sends a 404 response naming the missing resource id.
func AbortWithNotFound(c *gin.Context, message, id string) {
	var details map[string]interface{}
	if id != "" {
		details = map[string]interface{}{"id": id}
	}
	c.AbortWithStatusJSON(http.StatusNotFound, NewAPIError(message, details))
}

// AbortWithInternal sends a 500 response. The message must be generic; callers log the cause.
func AbortWithInternal(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, NewAPIError(message, nil))
}
