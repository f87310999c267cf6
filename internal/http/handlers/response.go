// Package handlers provides the HTTP handlers of the contact API.
//
// Every response uses the same envelope: successes are
// {"data": ..., "meta": {}} and failures are
//
//	HTTP/1.1 400 Bad Request
//	{
//	  "data": null,
//	  "error": {
//	    "status": 400,
//	    "name": "ValidationError",
//	    "message": "Invalid request body",
//	    "details": {}
//	  },
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000"
//	}
//
// fail centralizes error logging so 5xx responses are always recorded with
// request context.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/contact-backend/internal/http/middleware"
)

// ErrorBody is the "error" member of the envelope.
type ErrorBody struct {
	// HTTP status, repeated for clients that only see the body
	Status int `json:"status" example:"400"`
	// Stable, machine-readable name (see errors.go)
	Name string `json:"name" example:"ValidationError"`
	// Human-readable message, safe to show to users
	Message string `json:"message" example:"Verification failed"`
	// Structured context, e.g. {"errors": [...]} for validation failures
	Details map[string]any `json:"details"`
}

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	Data  any       `json:"data" swaggertype:"object"`
	Error ErrorBody `json:"error"`
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// DataResponse is the success envelope.
type DataResponse struct {
	Data any            `json:"data"`
	Meta map[string]any `json:"meta"`
}

// fail aborts the request with the error envelope. Server errors (>=500) are
// logged with the request-scoped logger.
func fail(c *gin.Context, status int, name, msg string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	resp := ErrorResponse{
		Data: nil,
		Error: ErrorBody{
			Status:  status,
			Name:    name,
			Message: msg,
			Details: details,
		},
		RequestID: middleware.GetRequestID(c),
	}
	if resp.RequestID == "" {
		resp.RequestID = c.Writer.Header().Get("X-Request-ID")
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("name", name).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail for the router's fallback handlers.
func Fail(c *gin.Context, status int, name, msg string) { fail(c, status, name, msg, nil) }

// ok writes data wrapped in the success envelope.
func ok(c *gin.Context, status int, data any) {
	c.JSON(status, DataResponse{Data: data, Meta: map[string]any{}})
}
