// Package httpkit provides shared HTTP middleware and response
// helpers for the gin handlers.
package httpkit

import (
	"errors"
	"net/http"

	"chatflow_backend/platform/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the wire format for error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// Error writes an error response with the given status.
func Error(c *gin.Context, status int, message string, details any) {
	c.JSON(status, ErrorResponse{Error: message, Details: details})
}

// HandleError writes an error response and reports whether err was
// non-nil. Typed *apperr.Error values pick their status from the
// error kind; anything else becomes a 400 with the error text.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	var domainErr *apperr.Error
	if errors.As(err, &domainErr) {
		c.JSON(domainErr.HTTPStatus(), ErrorResponse{
			Error:   domainErr.Message,
			Details: domainErr.Details,
		})
		return true
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	return true
}
