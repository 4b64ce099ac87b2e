package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messaging-core/internal/http/middleware"
	"github.com/tbourn/go-messaging-core/internal/services"
)

// ErrorResponse is the error envelope returned by all endpoints:
//
//	HTTP/1.1 403 Forbidden
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "forbidden",
//	  "message": "not a participant of conversation 42"
//	}
//
// Code is one of the ErrCode constants; Message is safe to show to users.
// Details of server-side failures are logged, never returned.
type ErrorResponse struct {
	// Echo of X-Request-ID
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code
	Code string `json:"code" example:"forbidden"`
	// Human-readable message
	Message string `json:"message" example:"not a participant of conversation 42"`
}

// fail aborts with the envelope. Statuses >= 500 are logged.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is fail for the router's fallback handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr answers a service error. Known kinds carry the service's reason
// as message; anything else is logged with its cause and rendered opaquely.
func failErr(c *gin.Context, err error) {
	var se *services.Error
	reason := err.Error()
	if errors.As(err, &se) && se.Reason != "" {
		reason = se.Reason
	}
	for _, ks := range kindStatus {
		if errors.Is(err, ks.kind) {
			fail(c, ks.status, ks.code, reason)
			return
		}
	}

	ev := middleware.LoggerFrom(c).Error().Err(err)
	if se != nil && se.Cause() != nil {
		ev = ev.AnErr("cause", se.Cause())
	}
	ev.Msg("service failure")
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }
