package rbac

import (
	"context"
	"time"

	"autopark.kz/internal/auth"
)

// Store is the persistence surface for roles, user-role bindings and
// identities. Implementations must return the package sentinel errors for
// missing rows and uniqueness violations.
type Store interface {
	// Roles.
	CreateRole(ctx context.Context, role Role) (Role, error)
	GetRole(ctx context.Context, roleID string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (Role, error)
	// DeleteRole fails with ErrRoleInUse while any binding references the role.
	DeleteRole(ctx context.Context, roleID string) error
	CountBindingsForRole(ctx context.Context, roleID string) (int, error)

	// Bindings. AssignRole and SetBlock upsert atomically on user_id; an
	// expired timed block is cleared as part of the same write.
	GetBinding(ctx context.Context, userID string) (UserRoleBinding, error)
	ListBindings(ctx context.Context) ([]UserRoleBinding, error)
	AssignRole(ctx context.Context, userID, roleID string) (UserRoleBinding, error)
	SetBlock(ctx context.Context, userID string, blocked bool, until *time.Time) (UserRoleBinding, error)

	// Identities.
	CreateUser(ctx context.Context, user auth.User) (auth.User, error)
	GetUser(ctx context.Context, userID string) (auth.User, error)
	FindUserByEmail(ctx context.Context, email string) (auth.User, error)
	ListUsers(ctx context.Context) ([]auth.User, error)
}
