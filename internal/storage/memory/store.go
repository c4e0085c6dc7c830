package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/bcnelson/stackplane/internal/domain"
	"github.com/bcnelson/stackplane/internal/storage"
)

// Store is an in-memory implementation of the storage interface for testing.
type Store struct {
	mu sync.RWMutex

	apiKeys     map[string]*domain.APIKey
	users       map[string]*domain.User
	userGroups  map[string]*domain.UserGroup
	permissions map[string]*domain.Permission // key: userTarget|resourceTarget
	servers     map[string]*domain.Server
	stacks      map[string]*domain.Stack
	updates     map[string]*domain.Update
	alerts      map[string]*domain.Alert
}

// Ensure Store implements storage.Storage.
var _ storage.Storage = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		apiKeys:     make(map[string]*domain.APIKey),
		users:       make(map[string]*domain.User),
		userGroups:  make(map[string]*domain.UserGroup),
		permissions: make(map[string]*domain.Permission),
		servers:     make(map[string]*domain.Server),
		stacks:      make(map[string]*domain.Stack),
		updates:     make(map[string]*domain.Update),
		alerts:      make(map[string]*domain.Alert),
	}
}

func (s *Store) Close() error { return nil }

// ============================================
// API Keys
// ============================================

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apiKeys[key.ID]; exists {
		return domain.ErrAlreadyExists
	}
	s.apiKeys[key.ID] = key
	return nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, key := range s.apiKeys {
		if key.KeyHash == keyHash {
			return key, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]*domain.APIKey, 0, len(s.apiKeys))
	for _, key := range s.apiKeys {
		if userID == "" || key.UserID == userID {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apiKeys[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.apiKeys, id)
	return nil
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, exists := s.apiKeys[id]
	if !exists {
		return domain.ErrNotFound
	}
	now := time.Now()
	key.LastUsedAt = &now
	return nil
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.apiKeys), nil
}

// ============================================
// Users
// ============================================

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.ID]; exists {
		return domain.ErrAlreadyExists
	}
	for _, existing := range s.users {
		if existing.Username == user.Username {
			return domain.ErrAlreadyExists
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, exists := s.users[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) SetUserRecentlyViewed(ctx context.Context, id string, viewed []domain.ResourceTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, exists := s.users[id]
	if !exists {
		return domain.ErrNotFound
	}
	updated := *user
	updated.RecentlyViewed = slices.Clone(viewed)
	s.users[id] = &updated
	return nil
}

func (s *Store) SetUserLastUpdateView(ctx context.Context, id string, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, exists := s.users[id]
	if !exists {
		return domain.ErrNotFound
	}
	updated := *user
	updated.LastUpdateView = ts
	s.users[id] = &updated
	return nil
}

// ============================================
// User Groups
// ============================================

func (s *Store) CreateUserGroup(ctx context.Context, group *domain.UserGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.userGroups[group.ID]; exists {
		return domain.ErrAlreadyExists
	}
	for _, existing := range s.userGroups {
		if existing.Name == group.Name {
			return domain.ErrAlreadyExists
		}
	}
	s.userGroups[group.ID] = group
	return nil
}

func (s *Store) ListUserGroupsForUser(ctx context.Context, userID string) ([]*domain.UserGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var groups []*domain.UserGroup
	for _, group := range s.userGroups {
		if slices.Contains(group.Users, userID) {
			groups = append(groups, group)
		}
	}
	return groups, nil
}

// ============================================
// Permissions
// ============================================

func permissionKey(ut domain.UserTarget, rt domain.ResourceTarget) string {
	return string(ut.Type) + ":" + ut.ID + "|" + string(rt.Type) + ":" + rt.ID
}

func (s *Store) UpsertPermission(ctx context.Context, perm *domain.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := permissionKey(perm.UserTarget, perm.ResourceTarget)
	if existing, ok := s.permissions[key]; ok {
		existing.Level = perm.Level
		perm.ID = existing.ID
		return nil
	}
	s.permissions[key] = perm
	return nil
}

func (s *Store) DeletePermission(ctx context.Context, ut domain.UserTarget, rt domain.ResourceTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.permissions, permissionKey(ut, rt))
	return nil
}

func (s *Store) ListPermissionsForResource(ctx context.Context, target domain.ResourceTarget) ([]*domain.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var perms []*domain.Permission
	for _, perm := range s.permissions {
		if perm.ResourceTarget == target {
			p := *perm
			perms = append(perms, &p)
		}
	}
	return perms, nil
}

// ============================================
// Servers
// ============================================

func (s *Store) CreateServer(ctx context.Context, server *domain.Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.servers[server.ID]; exists {
		return domain.ErrAlreadyExists
	}
	for _, existing := range s.servers {
		if existing.Name == server.Name {
			return domain.ErrAlreadyExists
		}
	}
	s.servers[server.ID] = server
	return nil
}

func (s *Store) GetServer(ctx context.Context, id string) (*domain.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	server, exists := s.servers[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return server, nil
}

func (s *Store) GetServerByName(ctx context.Context, name string) (*domain.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, server := range s.servers {
		if server.Name == name {
			return server, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListServers(ctx context.Context) ([]*domain.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	servers := make([]*domain.Server, 0, len(s.servers))
	for _, server := range s.servers {
		servers = append(servers, server)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
	return servers, nil
}

// ============================================
// Stacks
// ============================================

func (s *Store) CreateStack(ctx context.Context, stack *domain.Stack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.stacks[stack.ID]; exists {
		return domain.ErrAlreadyExists
	}
	for _, existing := range s.stacks {
		if existing.Name == stack.Name {
			return domain.ErrAlreadyExists
		}
	}
	s.stacks[stack.ID] = stack
	return nil
}

func (s *Store) GetStack(ctx context.Context, id string) (*domain.Stack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stack, exists := s.stacks[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return stack, nil
}

func (s *Store) GetStackByName(ctx context.Context, name string) (*domain.Stack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, stack := range s.stacks {
		if stack.Name == name {
			return stack, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListStacks(ctx context.Context) ([]*domain.Stack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stacks := make([]*domain.Stack, 0, len(s.stacks))
	for _, stack := range s.stacks {
		stacks = append(stacks, stack)
	}
	sort.Slice(stacks, func(i, j int) bool { return stacks[i].Name < stacks[j].Name })
	return stacks, nil
}

func (s *Store) ListStacksForServer(ctx context.Context, serverID string) ([]*domain.Stack, error) {
	stacks, _ := s.ListStacks(ctx)
	filtered := stacks[:0]
	for _, stack := range stacks {
		if stack.Config.ServerID == serverID {
			filtered = append(filtered, stack)
		}
	}
	return filtered, nil
}

// ============================================
// Updates
// ============================================

// Updates are copied in and out so callers mutating their own value
// never change the stored record behind UpdateUpdate's back.
func (s *Store) CreateUpdate(ctx context.Context, update *domain.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.updates[update.ID]; exists {
		return domain.ErrAlreadyExists
	}
	s.updates[update.ID] = update.Clone()
	return nil
}

func (s *Store) UpdateUpdate(ctx context.Context, update *domain.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.updates[update.ID]
	if !exists {
		return domain.ErrNotFound
	}
	if existing.Finalized() {
		return domain.ErrConflict
	}
	s.updates[update.ID] = update.Clone()
	return nil
}

func (s *Store) GetUpdate(ctx context.Context, id string) (*domain.Update, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	update, exists := s.updates[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return update.Clone(), nil
}

func (s *Store) ListUpdates(ctx context.Context, query domain.UpdateQuery) ([]*domain.UpdateListItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]*domain.UpdateListItem, 0, len(s.updates))
	for _, u := range s.updates {
		if query.Target != nil && u.Target != *query.Target {
			continue
		}
		items = append(items, &domain.UpdateListItem{
			ID:        u.ID,
			Operation: u.Operation,
			Target:    u.Target,
			Operator:  u.Operator,
			StartedAt: u.StartedAt,
			Status:    u.Status,
			Success:   u.Success,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].StartedAt.After(items[j].StartedAt) })
	return paginate(items, query.Limit, query.Offset), nil
}

// ============================================
// Alerts
// ============================================

func (s *Store) CreateAlert(ctx context.Context, alert *domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alerts[alert.ID]; exists {
		return domain.ErrAlreadyExists
	}
	s.alerts[alert.ID] = alert
	return nil
}

func (s *Store) ListAlerts(ctx context.Context, includeResolved bool, limit, offset int) ([]*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alerts := make([]*domain.Alert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		if alert.Resolved && !includeResolved {
			continue
		}
		alerts = append(alerts, alert)
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Timestamp.After(alerts[j].Timestamp) })
	return paginate(alerts, limit, offset), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
