// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIError is the JSON error body, {"code": ..., "detail": ...}.
type APIError struct {
	Status int    `json:"-"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(detail string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Detail: detail}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(detail string) *APIError {
	return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Detail: detail}
}

// NewInternalError creates a 500 error whose detail ends with the cause.
func NewInternalError(message string, cause error) *APIError {
	detail := message
	if cause != nil {
		detail = fmt.Sprintf("%s: %v", message, cause)
	}
	return &APIError{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Detail: detail}
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(detail string) *APIError {
	return &APIError{Status: http.StatusServiceUnavailable, Code: "SERVICE_UNAVAILABLE", Detail: detail}
}

// ErrorHandler renders every handler error as an APIError.
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = &APIError{
			Status: httpErr.Code,
			Code:   "HTTP_ERROR",
			Detail: fmt.Sprintf("%v", httpErr.Message),
		}
	default:
		apiErr = &APIError{
			Status: http.StatusInternalServerError,
			Code:   "UNKNOWN_ERROR",
			Detail: err.Error(),
		}
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	c.JSON(apiErr.Status, apiErr)
}
