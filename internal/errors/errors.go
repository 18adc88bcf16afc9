// Package errors provides standardized error handling for the cinetrack service.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents a standardized error code for the cinetrack service.
type ErrorCode string

const (
	// Validation errors
	CT_VALIDATION    ErrorCode = "CT_VALIDATION"    // General validation error (missing/malformed field)
	CT_SCHEMA_REJECT ErrorCode = "CT_SCHEMA_REJECT" // Payload schema validation failed
	CT_BAD_REQUEST   ErrorCode = "CT_BAD_REQUEST"   // Bad request

	// Authentication/Authorization errors
	CT_AUTHN         ErrorCode = "CT_AUTHN"         // Authentication required or failed
	CT_TOKEN_INVALID ErrorCode = "CT_TOKEN_INVALID" // Invalid session token
	CT_TOKEN_EXPIRED ErrorCode = "CT_TOKEN_EXPIRED" // Expired session token
	CT_NOT_OWNER     ErrorCode = "CT_NOT_OWNER"     // Caller does not own the record

	// Resource errors
	CT_NOT_FOUND       ErrorCode = "CT_NOT_FOUND"       // Record or account absent (or not owned by caller)
	CT_DUPLICATE_MOVIE ErrorCode = "CT_DUPLICATE_MOVIE" // Watched-movie already recorded for this owner
	CT_CONFLICT        ErrorCode = "CT_CONFLICT"        // Other uniqueness violation (e.g. email in use)

	// Poster upload errors
	CT_POSTER_SIZE ErrorCode = "CT_POSTER_SIZE" // Poster image exceeds size limit
	CT_POSTER_TYPE ErrorCode = "CT_POSTER_TYPE" // Poster image type not allowed

	// Upstream/server errors
	CT_PROVIDER_UNAVAILABLE ErrorCode = "CT_PROVIDER_UNAVAILABLE" // Metadata provider failure
	CT_INTERNAL             ErrorCode = "CT_INTERNAL"             // Internal server error
)

// Error represents a standardized error response.
type Error struct {
	Code          ErrorCode   `json:"code"`
	Message       string      `json:"message"`
	CorrelationID string      `json:"correlationId"`
	Details       interface{} `json:"details,omitempty"`
	HTTPStatus    int         `json:"-"`
}

// New creates a new Error with the specified code and message.
func New(code ErrorCode, message string, correlationID string) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// NewWithDetails creates a new Error with the specified code, message, and details.
func NewWithDetails(code ErrorCode, message string, correlationID string, details interface{}) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		Details:       details,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (details: %v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// httpStatusCodeForCode maps error codes to HTTP status codes.
func httpStatusCodeForCode(code ErrorCode) int {
	switch code {
	case CT_VALIDATION, CT_SCHEMA_REJECT, CT_BAD_REQUEST, CT_POSTER_SIZE, CT_POSTER_TYPE:
		return http.StatusBadRequest
	case CT_AUTHN, CT_TOKEN_INVALID, CT_TOKEN_EXPIRED:
		return http.StatusUnauthorized
	case CT_NOT_OWNER:
		return http.StatusForbidden
	case CT_NOT_FOUND:
		return http.StatusNotFound
	case CT_DUPLICATE_MOVIE, CT_CONFLICT:
		return http.StatusConflict
	case CT_PROVIDER_UNAVAILABLE:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
