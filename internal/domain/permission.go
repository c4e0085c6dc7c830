package domain

import (
	"encoding/json"
	"fmt"
)

// PermissionLevel is an ordered access level: None < Read < Execute < Write.
type PermissionLevel int

const (
	PermissionNone PermissionLevel = iota
	PermissionRead
	PermissionExecute
	PermissionWrite
)

var permissionLevelNames = [...]string{"None", "Read", "Execute", "Write"}

func (l PermissionLevel) String() string {
	if l < PermissionNone || l > PermissionWrite {
		return fmt.Sprintf("PermissionLevel(%d)", int(l))
	}
	return permissionLevelNames[l]
}

// ParsePermissionLevel parses a level name as produced by String.
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	for i, name := range permissionLevelNames {
		if name == s {
			return PermissionLevel(i), nil
		}
	}
	return PermissionNone, fmt.Errorf("%w: unknown permission level %q", ErrInvalidInput, s)
}

func (l PermissionLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *PermissionLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: permission level must be a string", ErrInvalidInput)
	}
	parsed, err := ParsePermissionLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ResourceType names a kind of managed resource.
type ResourceType string

const (
	ResourceTypeStack  ResourceType = "Stack"
	ResourceTypeServer ResourceType = "Server"
)

// ResourceTarget addresses one managed resource.
type ResourceTarget struct {
	Type ResourceType `json:"type" db:"resource_type"`
	ID   string       `json:"id" db:"resource_id"`
}

// UserTargetType says whether a permission is granted to a user or a group.
type UserTargetType string

const (
	UserTargetUser      UserTargetType = "User"
	UserTargetUserGroup UserTargetType = "UserGroup"
)

// UserTarget addresses the grantee of a permission.
type UserTarget struct {
	Type UserTargetType `json:"type" db:"user_target_type"`
	ID   string         `json:"id" db:"user_target_id"`
}

// Permission grants a level on one resource to a user or group.
type Permission struct {
	ID             string          `json:"id"`
	UserTarget     UserTarget      `json:"user_target"`
	ResourceTarget ResourceTarget  `json:"resource_target"`
	Level          PermissionLevel `json:"level"`
}

// UpdatePermissionOnTargetRequest sets (or clears with None) a grant.
type UpdatePermissionOnTargetRequest struct {
	UserTarget     UserTarget      `json:"user_target"`
	ResourceTarget ResourceTarget  `json:"resource_target"`
	Permission     PermissionLevel `json:"permission"`
}
