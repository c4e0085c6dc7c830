package domain

import "time"

// RecentlyViewedMax bounds the recently viewed list kept per user.
const RecentlyViewedMax = 10

// User is an authenticated principal. Admins are superusers.
type User struct {
	ID             string           `json:"id"`
	Username       string           `json:"username"`
	Admin          bool             `json:"admin"`
	Enabled        bool             `json:"enabled"`
	RecentlyViewed []ResourceTarget `json:"recently_viewed"`
	LastUpdateView int64            `json:"last_update_view"` // unix ms
	CreatedAt      time.Time        `json:"createdAt"`
}

// UserGroup collects users that share permission grants.
type UserGroup struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Users     []string  `json:"users" db:"-"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// CreateUserRequest is the request body for creating a user.
type CreateUserRequest struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin,omitempty"`
}

// CreateUserGroupRequest is the request body for creating a user group.
type CreateUserGroupRequest struct {
	Name  string   `json:"name"`
	Users []string `json:"users,omitempty"`
}
