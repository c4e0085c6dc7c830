package domain

import "errors"

// Common errors used throughout the application.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrConflict          = errors.New("conflict")
	ErrBusy              = errors.New("resource busy")
	ErrRemoteUnavailable = errors.New("remote agent unavailable")
	ErrRemoteFailure     = errors.New("remote agent failure")
	ErrStoreFailure      = errors.New("store failure")
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrBootstrapDisabled = errors.New("bootstrap key disabled - API keys exist")
)

// Error codes for standardized API error responses.
const (
	ErrCodeResourceNotFound      = "RESOURCE_NOT_FOUND"
	ErrCodeResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	ErrCodeInvalidInput          = "INVALID_INPUT"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeUnauthenticated       = "UNAUTHENTICATED"
	ErrCodeConflict              = "CONFLICT"
	ErrCodeBusy                  = "RESOURCE_BUSY"
	ErrCodeRemoteUnavailable     = "REMOTE_UNAVAILABLE"
	ErrCodeRemoteFailure         = "REMOTE_FAILURE"
	ErrCodeStoreFailure          = "STORE_FAILURE"
	ErrCodeInternalError         = "INTERNAL_ERROR"
)

// StandardError represents a standardized error response from the API.
type StandardError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// StandardErrorResponse wraps a StandardError for JSON responses.
type StandardErrorResponse struct {
	Error StandardError `json:"error"`
}
