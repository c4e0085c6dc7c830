package storage

import (
	"context"

	"github.com/bcnelson/stackplane/internal/domain"
)

// Storage defines the interface for the storage layer.
// Implementations must be safe for concurrent use.
// Lookups of missing rows return domain.ErrNotFound.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// API Keys
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	// ListAPIKeys lists the keys owned by userID, or every key when userID is empty.
	ListAPIKeys(ctx context.Context, userID string) ([]*domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
	CountAPIKeys(ctx context.Context) (int, error)

	// Users
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	SetUserRecentlyViewed(ctx context.Context, id string, viewed []domain.ResourceTarget) error
	SetUserLastUpdateView(ctx context.Context, id string, ts int64) error

	// User Groups
	CreateUserGroup(ctx context.Context, group *domain.UserGroup) error
	ListUserGroupsForUser(ctx context.Context, userID string) ([]*domain.UserGroup, error)

	// Permissions
	UpsertPermission(ctx context.Context, perm *domain.Permission) error
	DeletePermission(ctx context.Context, userTarget domain.UserTarget, resourceTarget domain.ResourceTarget) error
	ListPermissionsForResource(ctx context.Context, target domain.ResourceTarget) ([]*domain.Permission, error)

	// Servers
	CreateServer(ctx context.Context, server *domain.Server) error
	GetServer(ctx context.Context, id string) (*domain.Server, error)
	GetServerByName(ctx context.Context, name string) (*domain.Server, error)
	ListServers(ctx context.Context) ([]*domain.Server, error)

	// Stacks
	CreateStack(ctx context.Context, stack *domain.Stack) error
	GetStack(ctx context.Context, id string) (*domain.Stack, error)
	GetStackByName(ctx context.Context, name string) (*domain.Stack, error)
	ListStacks(ctx context.Context) ([]*domain.Stack, error)
	ListStacksForServer(ctx context.Context, serverID string) ([]*domain.Stack, error)

	// Updates
	CreateUpdate(ctx context.Context, update *domain.Update) error
	// UpdateUpdate replaces the stored update. It fails with domain.ErrConflict
	// when the stored record is already Complete.
	UpdateUpdate(ctx context.Context, update *domain.Update) error
	GetUpdate(ctx context.Context, id string) (*domain.Update, error)
	ListUpdates(ctx context.Context, query domain.UpdateQuery) ([]*domain.UpdateListItem, error)

	// Alerts
	CreateAlert(ctx context.Context, alert *domain.Alert) error
	ListAlerts(ctx context.Context, includeResolved bool, limit, offset int) ([]*domain.Alert, error)
}
