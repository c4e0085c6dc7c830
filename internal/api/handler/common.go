package handler

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bcnelson/stackplane/internal/domain"
	"github.com/google/uuid"
)

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a standard JSON error response for err.
// The message carries the full cause chain.
func respondError(w http.ResponseWriter, err error) {
	respondErrorDetails(w, err, nil)
}

// respondErrorDetails is respondError with extra machine-readable details.
func respondErrorDetails(w http.ResponseWriter, err error, details map[string]any) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	respondJSON(w, status, &domain.StandardErrorResponse{
		Error: domain.StandardError{Code: code, Message: err.Error(), Details: details},
	})
}

// errorStatus converts domain errors to HTTP status codes and error codes.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, domain.ErrCodeResourceNotFound
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, domain.ErrCodeUnauthenticated
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, domain.ErrCodeUnauthorized
	case errors.Is(err, domain.ErrBusy):
		return http.StatusConflict, domain.ErrCodeBusy
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, domain.ErrCodeResourceAlreadyExists
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, domain.ErrCodeConflict
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, domain.ErrCodeInvalidInput
	case errors.Is(err, domain.ErrRemoteUnavailable):
		return http.StatusServiceUnavailable, domain.ErrCodeRemoteUnavailable
	case errors.Is(err, domain.ErrRemoteFailure):
		return http.StatusBadGateway, domain.ErrCodeRemoteFailure
	case errors.Is(err, domain.ErrStoreFailure):
		return http.StatusInternalServerError, domain.ErrCodeStoreFailure
	default:
		return http.StatusInternalServerError, domain.ErrCodeInternalError
	}
}

// decodeJSON decodes JSON from request body.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// generateID generates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// generateAPIKey generates a new random API key.
func generateAPIKey() (key string, hash string, prefix string, err error) {
	// Generate 32 random bytes for the key
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", "", err
	}

	key = "spk_" + hex.EncodeToString(bytes)
	hash = hashKey(key)
	prefix = key[:12] // "spk_" + first 8 chars of hex

	return key, hash, prefix, nil
}

// hashKey creates a SHA-256 hash of the API key.
func hashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

func requireAdmin(user *domain.User) error {
	if user == nil || !user.Admin {
		return fmt.Errorf("%w: admin only", domain.ErrUnauthorized)
	}
	return nil
}
