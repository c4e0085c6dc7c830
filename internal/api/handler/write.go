package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bcnelson/stackplane/internal/api/middleware"
	"github.com/bcnelson/stackplane/internal/domain"
	"github.com/bcnelson/stackplane/internal/resolver"
	"github.com/bcnelson/stackplane/internal/validation"
)

// Write requests.
type (
	PushRecentlyViewed struct {
		Resource domain.ResourceTarget `json:"resource"`
	}
	SetLastSeenUpdate        struct{}
	CreateServer             domain.CreateServerRequest
	CreateStack              domain.CreateStackRequest
	CreateUser               domain.CreateUserRequest
	CreateUserGroup          domain.CreateUserGroupRequest
	UpdatePermissionOnTarget domain.UpdatePermissionOnTargetRequest
)

// NewWriteRegistry registers every write request.
func NewWriteRegistry(d *Deps) *resolver.Registry {
	r := resolver.NewRegistry("write")
	resolver.Register(r, d.pushRecentlyViewed)
	resolver.Register(r, d.setLastSeenUpdate)
	resolver.Register(r, d.createServer)
	resolver.Register(r, d.createStack)
	resolver.Register(r, d.createUser)
	resolver.Register(r, d.createUserGroup)
	resolver.Register(r, d.updatePermissionOnTarget)
	return r
}

func (d *Deps) pushRecentlyViewed(ctx context.Context, user *domain.User, req PushRecentlyViewed) (NoData, error) {
	if err := validateTarget(req.Resource); err != nil {
		return NoData{}, err
	}
	// The bootstrap admin has no user row to record views on.
	if user.ID == middleware.BootstrapUserID {
		return NoData{}, nil
	}
	current, err := d.Store.GetUser(ctx, user.ID)
	if err != nil {
		return NoData{}, fmt.Errorf("user %s: %w", user.ID, err)
	}
	viewed := pushFront(current.RecentlyViewed, req.Resource, domain.RecentlyViewedMax)
	if err := d.Store.SetUserRecentlyViewed(ctx, user.ID, viewed); err != nil {
		return NoData{}, fmt.Errorf("%w: saving recently viewed: %v", domain.ErrStoreFailure, err)
	}
	return NoData{}, nil
}

// pushFront moves target to the front of list, dropping duplicates and
// anything past limit.
func pushFront(list []domain.ResourceTarget, target domain.ResourceTarget, limit int) []domain.ResourceTarget {
	out := make([]domain.ResourceTarget, 0, limit)
	out = append(out, target)
	for _, t := range list {
		if len(out) == limit {
			break
		}
		if t != target {
			out = append(out, t)
		}
	}
	return out
}

func (d *Deps) setLastSeenUpdate(ctx context.Context, user *domain.User, _ SetLastSeenUpdate) (NoData, error) {
	if user.ID == middleware.BootstrapUserID {
		return NoData{}, nil
	}
	if err := d.Store.SetUserLastUpdateView(ctx, user.ID, time.Now().UnixMilli()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return NoData{}, fmt.Errorf("user %s: %w", user.ID, err)
		}
		return NoData{}, fmt.Errorf("%w: saving last seen update: %v", domain.ErrStoreFailure, err)
	}
	return NoData{}, nil
}

func (d *Deps) createServer(ctx context.Context, user *domain.User, req CreateServer) (*domain.Server, error) {
	if err := requireAdmin(user); err != nil {
		return nil, err
	}
	var errs validation.ValidationErrors
	if err := validation.ValidateResourceName("name", req.Name); err != nil {
		errs = append(errs, asValidationErrors(err)...)
	}
	if err := validation.ValidateServerAddress(req.Address); err != nil {
		errs = append(errs, asValidationErrors(err)...)
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	server := &domain.Server{
		ID:        generateID(),
		Name:      req.Name,
		Address:   strings.TrimRight(req.Address, "/"),
		Passkey:   req.Passkey,
		Region:    req.Region,
		Enabled:   req.Enabled == nil || *req.Enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.Store.CreateServer(ctx, server); err != nil {
		return nil, fmt.Errorf("creating server %s: %w", req.Name, err)
	}
	d.triggerRefresh()
	return server, nil
}

func (d *Deps) createStack(ctx context.Context, user *domain.User, req CreateStack) (*domain.Stack, error) {
	if err := requireAdmin(user); err != nil {
		return nil, err
	}
	if err := validation.ValidateResourceName("name", req.Name); err != nil {
		return nil, err
	}
	if req.Config.ServerID == "" {
		return nil, validation.NewValidationError("config.server_id", "", "must not be empty")
	}
	server, err := d.Store.GetServer(ctx, req.Config.ServerID)
	if errors.Is(err, domain.ErrNotFound) {
		server, err = d.Store.GetServerByName(ctx, req.Config.ServerID)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, validation.NewValidationError("config.server_id", req.Config.ServerID, "server does not exist")
		}
		return nil, fmt.Errorf("%w: getting server: %v", domain.ErrStoreFailure, err)
	}

	config := req.Config
	config.ServerID = server.ID
	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}
	now := time.Now()
	stack := &domain.Stack{
		ID:          generateID(),
		Name:        req.Name,
		Description: req.Description,
		Tags:        tags,
		Config:      config,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.Store.CreateStack(ctx, stack); err != nil {
		return nil, fmt.Errorf("creating stack %s: %w", req.Name, err)
	}
	d.triggerRefresh()
	return stack, nil
}

func (d *Deps) createUser(ctx context.Context, user *domain.User, req CreateUser) (*domain.User, error) {
	if err := requireAdmin(user); err != nil {
		return nil, err
	}
	if err := validation.ValidateResourceName("username", req.Username); err != nil {
		return nil, err
	}
	created := &domain.User{
		ID:             generateID(),
		Username:       req.Username,
		Admin:          req.Admin,
		Enabled:        true,
		RecentlyViewed: []domain.ResourceTarget{},
		CreatedAt:      time.Now(),
	}
	if err := d.Store.CreateUser(ctx, created); err != nil {
		return nil, fmt.Errorf("creating user %s: %w", req.Username, err)
	}
	return created, nil
}

func (d *Deps) createUserGroup(ctx context.Context, user *domain.User, req CreateUserGroup) (*domain.UserGroup, error) {
	if err := requireAdmin(user); err != nil {
		return nil, err
	}
	if err := validation.ValidateResourceName("name", req.Name); err != nil {
		return nil, err
	}
	members := make([]string, 0, len(req.Users))
	for _, id := range req.Users {
		if _, err := d.Store.GetUser(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, validation.NewValidationError("users", id, "user does not exist")
			}
			return nil, fmt.Errorf("%w: getting user: %v", domain.ErrStoreFailure, err)
		}
		members = append(members, id)
	}
	group := &domain.UserGroup{
		ID:        generateID(),
		Name:      req.Name,
		Users:     members,
		CreatedAt: time.Now(),
	}
	if err := d.Store.CreateUserGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("creating user group %s: %w", req.Name, err)
	}
	return group, nil
}

// updatePermissionOnTarget sets a grant. Setting None removes it.
func (d *Deps) updatePermissionOnTarget(ctx context.Context, user *domain.User, req UpdatePermissionOnTarget) (NoData, error) {
	if err := requireAdmin(user); err != nil {
		return NoData{}, err
	}
	if err := validateTarget(req.ResourceTarget); err != nil {
		return NoData{}, err
	}
	switch req.UserTarget.Type {
	case domain.UserTargetUser, domain.UserTargetUserGroup:
	default:
		return NoData{}, validation.NewValidationError("user_target.type", string(req.UserTarget.Type), "must be User or UserGroup")
	}
	if req.UserTarget.ID == "" {
		return NoData{}, validation.NewValidationError("user_target.id", "", "must not be empty")
	}

	if req.Permission == domain.PermissionNone {
		err := d.Store.DeletePermission(ctx, req.UserTarget, req.ResourceTarget)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return NoData{}, fmt.Errorf("%w: deleting permission: %v", domain.ErrStoreFailure, err)
		}
		return NoData{}, nil
	}

	perm := &domain.Permission{
		ID:             generateID(),
		UserTarget:     req.UserTarget,
		ResourceTarget: req.ResourceTarget,
		Level:          req.Permission,
	}
	if err := d.Store.UpsertPermission(ctx, perm); err != nil {
		return NoData{}, fmt.Errorf("%w: saving permission: %v", domain.ErrStoreFailure, err)
	}
	return NoData{}, nil
}

func validateTarget(t domain.ResourceTarget) error {
	switch t.Type {
	case domain.ResourceTypeStack, domain.ResourceTypeServer:
	default:
		return validation.NewValidationError("type", string(t.Type), "must be Stack or Server")
	}
	if t.ID == "" {
		return validation.NewValidationError("id", "", "must not be empty")
	}
	return nil
}

func asValidationErrors(err error) validation.ValidationErrors {
	var single *validation.ValidationError
	if errors.As(err, &single) {
		return validation.ValidationErrors{single}
	}
	var many validation.ValidationErrors
	if errors.As(err, &many) {
		return many
	}
	return validation.ValidationErrors{validation.NewValidationError("", "", err.Error())}
}
