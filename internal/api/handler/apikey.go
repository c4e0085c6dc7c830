package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bcnelson/stackplane/internal/api/middleware"
	"github.com/bcnelson/stackplane/internal/domain"
	"github.com/bcnelson/stackplane/internal/storage"
	"github.com/go-chi/chi/v5"
)

// APIKeyHandler handles API key endpoints.
type APIKeyHandler struct {
	store storage.Storage
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(store storage.Storage) *APIKeyHandler {
	return &APIKeyHandler{store: store}
}

// Create creates a new API key for the caller, or for req.UserID when the
// caller is an admin.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	var req domain.CreateAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if req.Name == "" {
		respondError(w, fmt.Errorf("%w: name is required", domain.ErrInvalidInput))
		return
	}

	ownerID := user.ID
	if req.UserID != "" && req.UserID != user.ID {
		if err := requireAdmin(user); err != nil {
			respondError(w, err)
			return
		}
		ownerID = req.UserID
	}
	if ownerID == middleware.BootstrapUserID {
		respondError(w, fmt.Errorf("%w: user_id is required when using the bootstrap key", domain.ErrInvalidInput))
		return
	}
	if _, err := h.store.GetUser(r.Context(), ownerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			err = fmt.Errorf("%w: user %s: %w", domain.ErrInvalidInput, ownerID, err)
		}
		respondError(w, err)
		return
	}

	key, hash, prefix, err := generateAPIKey()
	if err != nil {
		respondError(w, fmt.Errorf("failed to generate API key: %w", err))
		return
	}

	apiKey := &domain.APIKey{
		ID:        generateID(),
		UserID:    ownerID,
		Name:      req.Name,
		KeyHash:   hash,
		KeyPrefix: prefix,
		CreatedAt: time.Now(),
	}

	if err := h.store.CreateAPIKey(r.Context(), apiKey); err != nil {
		respondError(w, err)
		return
	}

	resp := &domain.CreateAPIKeyResponse{
		ID:        apiKey.ID,
		UserID:    apiKey.UserID,
		Name:      apiKey.Name,
		Key:       key, // Only returned on creation
		KeyPrefix: apiKey.KeyPrefix,
		CreatedAt: apiKey.CreatedAt,
	}

	respondJSON(w, http.StatusCreated, resp)
}

// List lists API keys (without the actual key values). Admins see every
// key, other users only their own.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	userID := user.ID
	if user.Admin {
		userID = ""
	}

	keys, err := h.store.ListAPIKeys(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, keys)
}

// Delete deletes an API key.
func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, fmt.Errorf("%w: id is required", domain.ErrInvalidInput))
		return
	}

	user := middleware.GetUserFromContext(r.Context())
	if !user.Admin {
		keys, err := h.store.ListAPIKeys(r.Context(), user.ID)
		if err != nil {
			respondError(w, err)
			return
		}
		owned := false
		for _, k := range keys {
			if k.ID == id {
				owned = true
				break
			}
		}
		if !owned {
			respondError(w, fmt.Errorf("api key %s: %w", id, domain.ErrNotFound))
			return
		}
	}

	if err := h.store.DeleteAPIKey(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
