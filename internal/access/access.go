// Package access resolves resources and enforces per-user permission levels.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/bcnelson/stackplane/internal/domain"
	"github.com/bcnelson/stackplane/internal/storage"
)

// Gate looks up resources and checks the caller's effective level on them.
type Gate struct {
	store       storage.Storage
	transparent bool
}

// New creates a gate. In transparent mode every enabled user can read
// every resource.
func New(store storage.Storage, transparent bool) *Gate {
	return &Gate{store: store, transparent: transparent}
}

// Level returns the user's effective level on target: the highest of the
// user's direct grants and the grants of every group the user is in.
func (g *Gate) Level(ctx context.Context, user *domain.User, target domain.ResourceTarget) (domain.PermissionLevel, error) {
	if user.Admin {
		return domain.PermissionWrite, nil
	}
	if !user.Enabled {
		return domain.PermissionNone, nil
	}

	level := domain.PermissionNone
	if g.transparent {
		level = domain.PermissionRead
	}

	perms, err := g.store.ListPermissionsForResource(ctx, target)
	if err != nil {
		return domain.PermissionNone, fmt.Errorf("%w: listing permissions: %v", domain.ErrStoreFailure, err)
	}
	if len(perms) == 0 {
		return level, nil
	}

	groups, err := g.store.ListUserGroupsForUser(ctx, user.ID)
	if err != nil {
		return domain.PermissionNone, fmt.Errorf("%w: listing user groups: %v", domain.ErrStoreFailure, err)
	}
	inGroup := make(map[string]bool, len(groups))
	for _, group := range groups {
		inGroup[group.ID] = true
	}

	for _, p := range perms {
		switch p.UserTarget.Type {
		case domain.UserTargetUser:
			if p.UserTarget.ID != user.ID {
				continue
			}
		case domain.UserTargetUserGroup:
			if !inGroup[p.UserTarget.ID] {
				continue
			}
		default:
			continue
		}
		level = max(level, p.Level)
	}
	return level, nil
}

// Check fails with domain.ErrUnauthorized when the user's level on target
// is below required. Admins always pass; disabled users never do.
func (g *Gate) Check(ctx context.Context, user *domain.User, target domain.ResourceTarget, required domain.PermissionLevel) error {
	if user.Admin {
		return nil
	}
	if !user.Enabled {
		return fmt.Errorf("%w: user %s is disabled", domain.ErrUnauthorized, user.Username)
	}
	level, err := g.Level(ctx, user, target)
	if err != nil {
		return err
	}
	if level < required {
		return fmt.Errorf("%w: user %s has %s permission on %s %s, %s required",
			domain.ErrUnauthorized, user.Username, level, target.Type, target.ID, required)
	}
	return nil
}

// LookupStack finds a stack by id, then by unique name.
func (g *Gate) LookupStack(ctx context.Context, ref string) (*domain.Stack, error) {
	stack, err := g.store.GetStack(ctx, ref)
	if err == nil {
		return stack, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: getting stack: %v", domain.ErrStoreFailure, err)
	}
	stack, err = g.store.GetStackByName(ctx, ref)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("stack %q: %w", ref, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: getting stack: %v", domain.ErrStoreFailure, err)
	}
	return stack, nil
}

// GetStack resolves a stack and requires the given level on it.
func (g *Gate) GetStack(ctx context.Context, ref string, user *domain.User, required domain.PermissionLevel) (*domain.Stack, error) {
	stack, err := g.LookupStack(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := g.Check(ctx, user, stack.Target(), required); err != nil {
		return nil, err
	}
	return stack, nil
}

// StackAndServer resolves a stack under the permission check and then the
// server it is deployed to. The server is not checked separately: the
// required level on the stack grants use of the stack's own server.
func (g *Gate) StackAndServer(ctx context.Context, ref string, user *domain.User, required domain.PermissionLevel) (*domain.Stack, *domain.Server, error) {
	stack, err := g.GetStack(ctx, ref, user, required)
	if err != nil {
		return nil, nil, err
	}
	if stack.Config.ServerID == "" {
		return nil, nil, fmt.Errorf("%w: stack %s has no server configured", domain.ErrInvalidInput, stack.Name)
	}
	server, err := g.store.GetServer(ctx, stack.Config.ServerID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, fmt.Errorf("server %s of stack %s: %w", stack.Config.ServerID, stack.Name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: getting server: %v", domain.ErrStoreFailure, err)
	}
	return stack, server, nil
}

// VisibleStacks returns the stacks the user can read, optionally filtered.
func (g *Gate) VisibleStacks(ctx context.Context, user *domain.User, query domain.ResourceQuery) ([]*domain.Stack, error) {
	stacks, err := g.store.ListStacks(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing stacks: %v", domain.ErrStoreFailure, err)
	}
	visible := make([]*domain.Stack, 0, len(stacks))
	for _, stack := range stacks {
		if !query.Matches(stack.Name, stack.Tags) {
			continue
		}
		if err := g.Check(ctx, user, stack.Target(), domain.PermissionRead); err != nil {
			if errors.Is(err, domain.ErrUnauthorized) {
				continue
			}
			return nil, err
		}
		visible = append(visible, stack)
	}
	return visible, nil
}
