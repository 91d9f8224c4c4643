package rbac

import "time"

// Role is a named, reusable bundle of permission flags and column
// visibility/editability lists.
type Role struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	IsActive    bool          `json:"is_active"`
	Permissions PermissionBag `json:"permissions"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// RoleDraft carries the caller-supplied fields for a new role.
type RoleDraft struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	IsActive    *bool         `json:"is_active"`
	Permissions PermissionBag `json:"permissions"`
}

// RoleUpdate is a partial patch; nil fields are left untouched.
type RoleUpdate struct {
	Name        *string
	Description *string
	IsActive    *bool
	Permissions *PermissionBag
}

// UserRoleBinding associates one identity with at most one role plus block
// state. RoleID empty means no role assigned. BlockedUntil nil together with
// IsBlocked means an indefinite block; a BlockedUntil in the past is a stale
// block and is ignored on read.
type UserRoleBinding struct {
	UserID       string     `json:"user_id"`
	RoleID       string     `json:"role_id,omitempty"`
	IsBlocked    bool       `json:"is_blocked"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Resolution is the outcome of resolving an identity against the binding and
// role tables. Both pointers are nil for an unknown identity.
type Resolution struct {
	Binding *UserRoleBinding `json:"binding"`
	Role    *Role            `json:"role"`
}

// HasPermission reports whether the resolved role grants the capability.
// Inactive or absent roles grant nothing.
func (r Resolution) HasPermission(key string) bool {
	if r.Role == nil || !r.Role.IsActive {
		return false
	}
	return r.Role.Permissions.Allows(key)
}

// VisibleColumns returns the resolved column-visibility set, or nil when the
// identity has no active role.
func (r Resolution) VisibleColumns() []string {
	if r.Role == nil || !r.Role.IsActive {
		return nil
	}
	return r.Role.Permissions.VisibleColumns
}

// CanEditColumn reports whether the resolved role allows editing the column.
func (r Resolution) CanEditColumn(column string) bool {
	if r.Role == nil || !r.Role.IsActive {
		return false
	}
	return r.Role.Permissions.ColumnEditable(column)
}
