package sql

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bcnelson/stackplane/internal/domain"
	"github.com/bcnelson/stackplane/internal/storage"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const (
	argKindExtra = "extra"
	argKindBuild = "build"
)

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// wrapUniqueError converts UNIQUE violations to domain.ErrAlreadyExists.
func wrapUniqueError(err error) error {
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Ensure Store implements storage.Storage.
var _ storage.Storage = (*Store)(nil)

// New creates a new SQL store and runs pending migrations.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if driver == "sqlite3" {
		// A single writer avoids SQLITE_BUSY under concurrent pipelines.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
	}

	// Run migrations
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// helper to get the correct database interface
type dbInterface interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// withTx runs fn inside a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(db dbInterface) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func requireAffected(result sql.Result) error {
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ============================================
// API Keys
// ============================================

const apiKeyColumns = `id, user_id, name, key_hash, key_prefix, created_at, last_used_at`

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (`+apiKeyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt, key.LastUsedAt)
	return wrapUniqueError(err)
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := s.db.GetContext(ctx, &key,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, keyHash)
	if err != nil {
		return nil, notFound(err)
	}
	return &key, nil
}

func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]*domain.APIKey, error) {
	var keys []*domain.APIKey
	err := s.db.SelectContext(ctx, &keys,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE $1 = '' OR user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, time.Now(), id)
	return err
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM api_keys`)
	return count, err
}

// ============================================
// Users
// ============================================

type userRow struct {
	ID             string    `db:"id"`
	Username       string    `db:"username"`
	Admin          bool      `db:"admin"`
	Enabled        bool      `db:"enabled"`
	RecentlyViewed string    `db:"recently_viewed"`
	LastUpdateView int64     `db:"last_update_view"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r *userRow) toDomain() (*domain.User, error) {
	user := &domain.User{
		ID:             r.ID,
		Username:       r.Username,
		Admin:          r.Admin,
		Enabled:        r.Enabled,
		LastUpdateView: r.LastUpdateView,
		CreatedAt:      r.CreatedAt,
	}
	if r.RecentlyViewed != "" {
		if err := json.Unmarshal([]byte(r.RecentlyViewed), &user.RecentlyViewed); err != nil {
			return nil, fmt.Errorf("decoding recently viewed for user %s: %w", r.ID, err)
		}
	}
	return user, nil
}

const userColumns = `id, username, admin, enabled, recently_viewed, last_update_view, created_at`

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	viewed, err := json.Marshal(user.RecentlyViewed)
	if err != nil {
		return err
	}
	if user.RecentlyViewed == nil {
		viewed = []byte("[]")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Username, user.Admin, user.Enabled, string(viewed), user.LastUpdateView, user.CreatedAt)
	return wrapUniqueError(err)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE `+where, arg); err != nil {
		return nil, notFound(err)
	}
	return row.toDomain()
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.getUser(ctx, `id = $1`, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.getUser(ctx, `username = $1`, username)
}

func (s *Store) SetUserRecentlyViewed(ctx context.Context, id string, viewed []domain.ResourceTarget) error {
	data, err := json.Marshal(viewed)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET recently_viewed = $1 WHERE id = $2`, string(data), id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *Store) SetUserLastUpdateView(ctx context.Context, id string, ts int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_update_view = $1 WHERE id = $2`, ts, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// ============================================
// User Groups
// ============================================

func (s *Store) CreateUserGroup(ctx context.Context, group *domain.UserGroup) error {
	return s.withTx(ctx, func(db dbInterface) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO user_groups (id, name, created_at) VALUES ($1, $2, $3)`,
			group.ID, group.Name, group.CreatedAt)
		if err != nil {
			return wrapUniqueError(err)
		}
		for _, userID := range group.Users {
			_, err := db.ExecContext(ctx,
				`INSERT INTO user_group_members (group_id, user_id) VALUES ($1, $2)`, group.ID, userID)
			if err != nil {
				return wrapUniqueError(err)
			}
		}
		return nil
	})
}

func (s *Store) ListUserGroupsForUser(ctx context.Context, userID string) ([]*domain.UserGroup, error) {
	var groups []*domain.UserGroup
	err := s.db.SelectContext(ctx, &groups,
		`SELECT g.id, g.name, g.created_at FROM user_groups g
		 JOIN user_group_members m ON m.group_id = g.id
		 WHERE m.user_id = $1 ORDER BY g.name`, userID)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if err := s.db.SelectContext(ctx, &g.Users,
			`SELECT user_id FROM user_group_members WHERE group_id = $1 ORDER BY user_id`, g.ID); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// ============================================
// Permissions
// ============================================

type permissionRow struct {
	ID             string `db:"id"`
	UserTargetType string `db:"user_target_type"`
	UserTargetID   string `db:"user_target_id"`
	ResourceType   string `db:"resource_type"`
	ResourceID     string `db:"resource_id"`
	Level          int    `db:"level"`
}

func (s *Store) UpsertPermission(ctx context.Context, perm *domain.Permission) error {
	if perm.ID == "" {
		perm.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO permissions (id, user_target_type, user_target_id, resource_type, resource_id, level)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_target_type, user_target_id, resource_type, resource_id)
		 DO UPDATE SET level = excluded.level`,
		perm.ID, perm.UserTarget.Type, perm.UserTarget.ID,
		perm.ResourceTarget.Type, perm.ResourceTarget.ID, int(perm.Level))
	return err
}

func (s *Store) DeletePermission(ctx context.Context, ut domain.UserTarget, rt domain.ResourceTarget) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM permissions
		 WHERE user_target_type = $1 AND user_target_id = $2 AND resource_type = $3 AND resource_id = $4`,
		ut.Type, ut.ID, rt.Type, rt.ID)
	return err
}

func (s *Store) ListPermissionsForResource(ctx context.Context, target domain.ResourceTarget) ([]*domain.Permission, error) {
	var rows []permissionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, user_target_type, user_target_id, resource_type, resource_id, level
		 FROM permissions WHERE resource_type = $1 AND resource_id = $2`, target.Type, target.ID)
	if err != nil {
		return nil, err
	}
	perms := make([]*domain.Permission, 0, len(rows))
	for _, r := range rows {
		perms = append(perms, &domain.Permission{
			ID:             r.ID,
			UserTarget:     domain.UserTarget{Type: domain.UserTargetType(r.UserTargetType), ID: r.UserTargetID},
			ResourceTarget: domain.ResourceTarget{Type: domain.ResourceType(r.ResourceType), ID: r.ResourceID},
			Level:          domain.PermissionLevel(r.Level),
		})
	}
	return perms, nil
}

// ============================================
// Servers
// ============================================

const serverColumns = `id, name, address, passkey, region, enabled, created_at, updated_at`

func (s *Store) CreateServer(ctx context.Context, server *domain.Server) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO servers (`+serverColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		server.ID, server.Name, server.Address, server.Passkey, server.Region, server.Enabled,
		server.CreatedAt, server.UpdatedAt)
	return wrapUniqueError(err)
}

func (s *Store) GetServer(ctx context.Context, id string) (*domain.Server, error) {
	var server domain.Server
	if err := s.db.GetContext(ctx, &server, `SELECT `+serverColumns+` FROM servers WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &server, nil
}

func (s *Store) GetServerByName(ctx context.Context, name string) (*domain.Server, error) {
	var server domain.Server
	if err := s.db.GetContext(ctx, &server, `SELECT `+serverColumns+` FROM servers WHERE name = $1`, name); err != nil {
		return nil, notFound(err)
	}
	return &server, nil
}

func (s *Store) ListServers(ctx context.Context) ([]*domain.Server, error) {
	var servers []*domain.Server
	if err := s.db.SelectContext(ctx, &servers, `SELECT `+serverColumns+` FROM servers ORDER BY name`); err != nil {
		return nil, err
	}
	return servers, nil
}

// ============================================
// Stacks
// ============================================

type stackRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	ServerID    string    `db:"server_id"`
	ProjectName string    `db:"project_name"`
	GitProvider string    `db:"git_provider"`
	Repo        string    `db:"repo"`
	Branch      string    `db:"branch"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

const stackColumns = `id, name, description, server_id, project_name, git_provider, repo, branch, created_at, updated_at`

func (s *Store) CreateStack(ctx context.Context, stack *domain.Stack) error {
	return s.withTx(ctx, func(db dbInterface) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO stacks (`+stackColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			stack.ID, stack.Name, stack.Description, stack.Config.ServerID, stack.Config.ProjectName,
			stack.Config.GitProvider, stack.Config.Repo, stack.Config.Branch, stack.CreatedAt, stack.UpdatedAt)
		if err != nil {
			return wrapUniqueError(err)
		}
		for i, tag := range stack.Tags {
			if _, err := db.ExecContext(ctx,
				`INSERT INTO stack_tags (stack_id, tag, seq) VALUES ($1, $2, $3)`, stack.ID, tag, i); err != nil {
				return wrapUniqueError(err)
			}
		}
		if err := insertStackArgs(ctx, db, stack.ID, argKindExtra, stack.Config.ExtraArgs); err != nil {
			return err
		}
		return insertStackArgs(ctx, db, stack.ID, argKindBuild, stack.Config.BuildExtraArgs)
	})
}

func insertStackArgs(ctx context.Context, db dbInterface, stackID, kind string, args []string) error {
	for i, arg := range args {
		_, err := db.ExecContext(ctx,
			`INSERT INTO stack_args (stack_id, kind, arg, seq) VALUES ($1, $2, $3, $4)`, stackID, kind, arg, i)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) hydrateStack(ctx context.Context, row *stackRow) (*domain.Stack, error) {
	stack := &domain.Stack{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Config: domain.StackConfig{
			ServerID:    row.ServerID,
			ProjectName: row.ProjectName,
			GitProvider: row.GitProvider,
			Repo:        row.Repo,
			Branch:      row.Branch,
		},
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if err := s.db.SelectContext(ctx, &stack.Tags,
		`SELECT tag FROM stack_tags WHERE stack_id = $1 ORDER BY seq`, row.ID); err != nil {
		return nil, err
	}
	if err := s.db.SelectContext(ctx, &stack.Config.ExtraArgs,
		`SELECT arg FROM stack_args WHERE stack_id = $1 AND kind = $2 ORDER BY seq`, row.ID, argKindExtra); err != nil {
		return nil, err
	}
	if err := s.db.SelectContext(ctx, &stack.Config.BuildExtraArgs,
		`SELECT arg FROM stack_args WHERE stack_id = $1 AND kind = $2 ORDER BY seq`, row.ID, argKindBuild); err != nil {
		return nil, err
	}
	return stack, nil
}

func (s *Store) getStack(ctx context.Context, where string, arg any) (*domain.Stack, error) {
	var row stackRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+stackColumns+` FROM stacks WHERE `+where, arg); err != nil {
		return nil, notFound(err)
	}
	return s.hydrateStack(ctx, &row)
}

func (s *Store) GetStack(ctx context.Context, id string) (*domain.Stack, error) {
	return s.getStack(ctx, `id = $1`, id)
}

func (s *Store) GetStackByName(ctx context.Context, name string) (*domain.Stack, error) {
	return s.getStack(ctx, `name = $1`, name)
}

func (s *Store) listStacks(ctx context.Context, query string, args ...any) ([]*domain.Stack, error) {
	var rows []stackRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	stacks := make([]*domain.Stack, 0, len(rows))
	for i := range rows {
		stack, err := s.hydrateStack(ctx, &rows[i])
		if err != nil {
			return nil, err
		}
		stacks = append(stacks, stack)
	}
	return stacks, nil
}

func (s *Store) ListStacks(ctx context.Context) ([]*domain.Stack, error) {
	return s.listStacks(ctx, `SELECT `+stackColumns+` FROM stacks ORDER BY name`)
}

func (s *Store) ListStacksForServer(ctx context.Context, serverID string) ([]*domain.Stack, error) {
	return s.listStacks(ctx, `SELECT `+stackColumns+` FROM stacks WHERE server_id = $1 ORDER BY name`, serverID)
}

// ============================================
// Updates
// ============================================

type updateRow struct {
	ID           string     `db:"id"`
	Operation    string     `db:"operation"`
	ResourceType string     `db:"resource_type"`
	ResourceID   string     `db:"resource_id"`
	Operator     string     `db:"operator"`
	StartedAt    time.Time  `db:"started_at"`
	EndedAt      *time.Time `db:"ended_at"`
	Status       string     `db:"status"`
	Success      bool       `db:"success"`
}

const updateColumns = `id, operation, resource_type, resource_id, operator, started_at, ended_at, status, success`

func insertUpdateLogs(ctx context.Context, db dbInterface, updateID string, logs []domain.Log) error {
	for i, l := range logs {
		_, err := db.ExecContext(ctx,
			`INSERT INTO update_logs (update_id, seq, stage, command, stdout, stderr, success, started_at, ended_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			updateID, i, l.Stage, l.Command, l.Stdout, l.Stderr, l.Success, l.StartedAt, l.EndedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateUpdate(ctx context.Context, update *domain.Update) error {
	return s.withTx(ctx, func(db dbInterface) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO updates (`+updateColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			update.ID, update.Operation, update.Target.Type, update.Target.ID, update.Operator,
			update.StartedAt, update.EndedAt, update.Status, update.Success)
		if err != nil {
			return wrapUniqueError(err)
		}
		return insertUpdateLogs(ctx, db, update.ID, update.Logs)
	})
}

func (s *Store) UpdateUpdate(ctx context.Context, update *domain.Update) error {
	return s.withTx(ctx, func(db dbInterface) error {
		result, err := db.ExecContext(ctx,
			`UPDATE updates SET ended_at = $1, status = $2, success = $3
			 WHERE id = $4 AND status <> $5`,
			update.EndedAt, update.Status, update.Success, update.ID, domain.UpdateStatusComplete)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			var count int
			if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM updates WHERE id = $1`, update.ID); err != nil {
				return err
			}
			if count == 0 {
				return domain.ErrNotFound
			}
			return domain.ErrConflict
		}
		if _, err := db.ExecContext(ctx, `DELETE FROM update_logs WHERE update_id = $1`, update.ID); err != nil {
			return err
		}
		return insertUpdateLogs(ctx, db, update.ID, update.Logs)
	})
}

func (s *Store) GetUpdate(ctx context.Context, id string) (*domain.Update, error) {
	var row updateRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+updateColumns+` FROM updates WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	update := &domain.Update{
		ID:        row.ID,
		Operation: domain.Operation(row.Operation),
		Target:    domain.ResourceTarget{Type: domain.ResourceType(row.ResourceType), ID: row.ResourceID},
		Operator:  row.Operator,
		StartedAt: row.StartedAt,
		EndedAt:   row.EndedAt,
		Status:    domain.UpdateStatus(row.Status),
		Success:   row.Success,
	}
	err := s.db.SelectContext(ctx, &update.Logs,
		`SELECT stage, command, stdout, stderr, success, started_at, ended_at
		 FROM update_logs WHERE update_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	return update, nil
}

func (s *Store) ListUpdates(ctx context.Context, query domain.UpdateQuery) ([]*domain.UpdateListItem, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}
	var (
		rows []updateRow
		err  error
	)
	if query.Target != nil {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT `+updateColumns+` FROM updates WHERE resource_type = $1 AND resource_id = $2
			 ORDER BY started_at DESC LIMIT $3 OFFSET $4`,
			query.Target.Type, query.Target.ID, limit, query.Offset)
	} else {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT `+updateColumns+` FROM updates ORDER BY started_at DESC LIMIT $1 OFFSET $2`,
			limit, query.Offset)
	}
	if err != nil {
		return nil, err
	}
	items := make([]*domain.UpdateListItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, &domain.UpdateListItem{
			ID:        r.ID,
			Operation: domain.Operation(r.Operation),
			Target:    domain.ResourceTarget{Type: domain.ResourceType(r.ResourceType), ID: r.ResourceID},
			Operator:  r.Operator,
			StartedAt: r.StartedAt,
			Status:    domain.UpdateStatus(r.Status),
			Success:   r.Success,
		})
	}
	return items, nil
}

// ============================================
// Alerts
// ============================================

type alertRow struct {
	ID           string     `db:"id"`
	Timestamp    time.Time  `db:"ts"`
	Resolved     bool       `db:"resolved"`
	ResolvedAt   *time.Time `db:"resolved_at"`
	Level        string     `db:"level"`
	ResourceType string     `db:"resource_type"`
	ResourceID   string     `db:"resource_id"`
	Variant      string     `db:"variant"`
	Data         string     `db:"data"`
}

const alertColumns = `id, ts, resolved, resolved_at, level, resource_type, resource_id, variant, data`

func (s *Store) CreateAlert(ctx context.Context, alert *domain.Alert) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (`+alertColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		alert.ID, alert.Timestamp, alert.Resolved, alert.ResolvedAt, alert.Level,
		alert.Target.Type, alert.Target.ID, alert.Variant, string(alert.Data))
	return wrapUniqueError(err)
}

func (s *Store) ListAlerts(ctx context.Context, includeResolved bool, limit, offset int) ([]*domain.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + alertColumns + ` FROM alerts`
	if !includeResolved {
		query += ` WHERE resolved = FALSE`
	}
	query += ` ORDER BY ts DESC LIMIT $1 OFFSET $2`

	var rows []alertRow
	if err := s.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, err
	}
	alerts := make([]*domain.Alert, 0, len(rows))
	for _, r := range rows {
		alert := &domain.Alert{
			ID:         r.ID,
			Timestamp:  r.Timestamp,
			Resolved:   r.Resolved,
			ResolvedAt: r.ResolvedAt,
			Level:      domain.SeverityLevel(r.Level),
			Target:     domain.ResourceTarget{Type: domain.ResourceType(r.ResourceType), ID: r.ResourceID},
			Variant:    r.Variant,
		}
		if r.Data != "" {
			alert.Data = json.RawMessage(r.Data)
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}
