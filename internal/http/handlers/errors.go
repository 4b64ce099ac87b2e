package handlers

import (
	"net/http"

	"github.com/tbourn/go-messaging-core/internal/services"
)

// Stable error codes of the JSON error envelope.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_failed"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// Written by middleware before a handler runs.
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeRateLimited  = "too_many_requests"
)

// kindStatus maps service error kinds onto the envelope. Anything that
// matches no kind is answered as 500 internal_error.
var kindStatus = []struct {
	kind   error
	status int
	code   string
}{
	{services.ErrValidation, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrPermission, http.StatusForbidden, ErrCodeForbidden},
	{services.ErrConflict, http.StatusConflict, ErrCodeConflict},
}
