package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bcnelson/stackplane/internal/auth"
	"github.com/bcnelson/stackplane/internal/domain"
	"github.com/bcnelson/stackplane/internal/storage"
	"github.com/google/uuid"
)

type contextKey string

const (
	UserContextKey   contextKey = "user"
	APIKeyContextKey contextKey = "api_key"
)

// BootstrapUserID identifies the synthetic admin used with the bootstrap key.
const BootstrapUserID = "bootstrap"

// Auth creates authentication middleware. Bearer tokens shaped like a JWT
// are verified as OIDC ID tokens when verifier is set; anything else is
// treated as an API key. The resolved user is stored in the request context.
func Auth(store storage.Storage, bootstrapKey string, verifier auth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthenticated(w, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				unauthenticated(w, "invalid authorization header format")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == "" {
				unauthenticated(w, "empty bearer token")
				return
			}

			ctx := r.Context()

			var (
				user *domain.User
				err  error
			)
			if verifier != nil && auth.LooksLikeJWT(token) {
				user, err = userFromIDToken(ctx, store, verifier, token)
			} else {
				var key *domain.APIKey
				user, key, err = userFromAPIKey(ctx, store, bootstrapKey, token)
				if key != nil {
					ctx = context.WithValue(ctx, APIKeyContextKey, key)
				}
			}
			if err != nil {
				if errors.Is(err, domain.ErrUnauthenticated) {
					unauthenticated(w, err.Error())
					return
				}
				slog.Error("authentication failed", "error", err)
				writeError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "internal server error")
				return
			}
			if !user.Enabled {
				unauthenticated(w, "user is disabled")
				return
			}

			ctx = context.WithValue(ctx, UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func userFromAPIKey(ctx context.Context, store storage.Storage, bootstrapKey, apiKey string) (*domain.User, *domain.APIKey, error) {
	// Check if we have any API keys in the database
	keyCount, err := store.CountAPIKeys(ctx)
	if err != nil {
		return nil, nil, err
	}

	// If no keys exist and bootstrap key is set, allow bootstrap key
	if keyCount == 0 && bootstrapKey != "" {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(bootstrapKey)) == 1 {
			user := &domain.User{
				ID:       BootstrapUserID,
				Username: "bootstrap",
				Admin:    true,
				Enabled:  true,
			}
			key := &domain.APIKey{ID: "bootstrap", UserID: BootstrapUserID, Name: "Bootstrap Key"}
			return user, key, nil
		}
	}

	storedKey, err := store.GetAPIKeyByHash(ctx, hashAPIKey(apiKey))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, errInvalidKey
		}
		return nil, nil, err
	}

	user, err := store.GetUser(ctx, storedKey.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, errInvalidKey
		}
		return nil, nil, err
	}

	// Update last used timestamp (fire and forget)
	go func() {
		_ = store.UpdateAPIKeyLastUsed(context.Background(), storedKey.ID)
	}()

	return user, storedKey, nil
}

// userFromIDToken verifies the token and returns the matching user,
// creating an enabled non-admin user on first login.
func userFromIDToken(ctx context.Context, store storage.Storage, verifier auth.TokenVerifier, token string) (*domain.User, error) {
	claims, err := verifier.Verify(ctx, token)
	if err != nil {
		slog.Debug("ID token rejected", "error", err)
		return nil, domain.ErrUnauthenticated
	}

	username := claims.Username()
	user, err := store.GetUserByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	user = &domain.User{
		ID:        uuid.New().String(),
		Username:  username,
		Enabled:   true,
		CreatedAt: time.Now(),
	}
	if err := store.CreateUser(ctx, user); err != nil {
		// Lost a race with a concurrent first login.
		if errors.Is(err, domain.ErrAlreadyExists) {
			return store.GetUserByUsername(ctx, username)
		}
		return nil, err
	}
	slog.Info("provisioned user from ID token", "username", username, "user_id", user.ID)
	return user, nil
}

// hashAPIKey creates a SHA-256 hash of the API key.
// We use SHA-256 for fast lookups since API keys are already high-entropy random strings.
func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

func unauthenticated(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, domain.ErrCodeUnauthenticated, message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&domain.StandardErrorResponse{
		Error: domain.StandardError{Code: code, Message: message},
	})
}

// GetUserFromContext retrieves the authenticated user from the request context.
func GetUserFromContext(ctx context.Context) *domain.User {
	user, _ := ctx.Value(UserContextKey).(*domain.User)
	return user
}

// GetAPIKeyFromContext retrieves the API key from the request context.
func GetAPIKeyFromContext(ctx context.Context) *domain.APIKey {
	key, _ := ctx.Value(APIKeyContextKey).(*domain.APIKey)
	return key
}

var errInvalidKey = fmt.Errorf("%w: %w", domain.ErrUnauthenticated, domain.ErrInvalidAPIKey)
