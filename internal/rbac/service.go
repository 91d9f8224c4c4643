package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autopark.kz/internal/auth"
	"autopark.kz/internal/ids"
)

// Service implements role management, user management and the authorization
// gate on top of a Store. Every mutating operation takes the acting identity
// explicitly; nothing is read from ambient state.
type Service struct {
	store Store
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source, used by tests exercising block expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires a Service around the given store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UserWithRole is a directory row joining an identity with its binding and
// the resolved role name.
type UserWithRole struct {
	User     auth.User        `json:"user"`
	Binding  *UserRoleBinding `json:"binding,omitempty"`
	RoleName string           `json:"role_name,omitempty"`
}

// Resolve loads the binding and role for an identity. An unknown identity
// resolves to an empty Resolution, not an error. A blocked identity fails
// with *BlockedError; a timed block whose expiry has passed is treated as
// unblocked without rewriting the row.
func (s *Service) Resolve(ctx context.Context, userID string) (Resolution, error) {
	if strings.TrimSpace(userID) == "" {
		return Resolution{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	binding, err := s.store.GetBinding(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Resolution{}, nil
		}
		return Resolution{}, fmt.Errorf("get binding: %w", err)
	}
	if s.blockInEffect(binding) {
		return Resolution{}, &BlockedError{Until: binding.BlockedUntil}
	}
	res := Resolution{Binding: &binding}
	if binding.RoleID == "" {
		return res, nil
	}
	role, err := s.store.GetRole(ctx, binding.RoleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Dangling role reference; treat as unassigned.
			return res, nil
		}
		return Resolution{}, fmt.Errorf("get role: %w", err)
	}
	res.Role = &role
	return res, nil
}

// RequirePermission resolves the identity and checks one capability flag.
// It returns ErrForbidden when the flag is absent and propagates blocks.
func (s *Service) RequirePermission(ctx context.Context, userID, key string) error {
	res, err := s.Resolve(ctx, userID)
	if err != nil {
		return err
	}
	if !res.HasPermission(key) {
		return fmt.Errorf("%w: %s", ErrForbidden, key)
	}
	return nil
}

// Authenticate verifies credentials and block state for a login attempt.
// Credential failures are folded into ErrUnauthorized so callers cannot
// distinguish a missing account from a wrong password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (auth.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return auth.User{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.User{}, ErrUnauthorized
		}
		return auth.User{}, fmt.Errorf("find user: %w", err)
	}
	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		return auth.User{}, ErrUnauthorized
	}
	if user.Status != auth.UserStatusActive {
		return auth.User{}, ErrUnauthorized
	}
	if _, err := s.Resolve(ctx, user.ID); err != nil {
		return auth.User{}, err
	}
	return user, nil
}

// CreateRole persists a new role for an actor holding canManageRoles.
func (s *Service) CreateRole(ctx context.Context, actor auth.Actor, draft RoleDraft) (Role, error) {
	if err := s.requireActor(ctx, actor, PermManageRoles); err != nil {
		return Role{}, err
	}
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	active := true
	if draft.IsActive != nil {
		active = *draft.IsActive
	}
	now := s.now()
	role := Role{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(draft.Description),
		IsActive:    active,
		Permissions: draft.Permissions.Normalize(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := s.store.CreateRole(ctx, role)
	if err != nil {
		return Role{}, fmt.Errorf("create role: %w", err)
	}
	return created, nil
}

// GetRole returns one role. Any authenticated actor may read roles.
func (s *Service) GetRole(ctx context.Context, actor auth.Actor, roleID string) (Role, error) {
	if actor.IsZero() {
		return Role{}, ErrUnauthorized
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all roles. Any authenticated actor may read roles.
func (s *Service) ListRoles(ctx context.Context, actor auth.Actor) ([]Role, error) {
	if actor.IsZero() {
		return nil, ErrUnauthorized
	}
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// UpdateRole applies a partial patch to a role. Permission bags in the patch
// are normalized before they reach the store.
func (s *Service) UpdateRole(ctx context.Context, actor auth.Actor, roleID string, upd RoleUpdate) (Role, error) {
	if err := s.requireActor(ctx, actor, PermManageRoles); err != nil {
		return Role{}, err
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return Role{}, fmt.Errorf("%w: role name cannot be empty", ErrInvalidInput)
	}
	if upd.Permissions != nil {
		normalized := upd.Permissions.Normalize()
		upd.Permissions = &normalized
	}
	role, err := s.store.UpdateRole(ctx, roleID, upd)
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role that no binding references. The pre-check keeps
// the common error path cheap; the store enforces the same rule under race
// via the foreign key.
func (s *Service) DeleteRole(ctx context.Context, actor auth.Actor, roleID string) error {
	if err := s.requireActor(ctx, actor, PermManageRoles); err != nil {
		return err
	}
	count, err := s.store.CountBindingsForRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("count bindings: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %d users", ErrRoleInUse, count)
	}
	return s.store.DeleteRole(ctx, roleID)
}

// AssignRole points a user's binding at the role, creating the binding if
// absent. An empty roleID clears the assignment.
func (s *Service) AssignRole(ctx context.Context, actor auth.Actor, userID, roleID string) (UserRoleBinding, error) {
	if err := s.requireActor(ctx, actor, PermManageUsers); err != nil {
		return UserRoleBinding{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return UserRoleBinding{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if roleID != "" {
		if _, err := s.store.GetRole(ctx, roleID); err != nil {
			return UserRoleBinding{}, err
		}
	}
	binding, err := s.store.AssignRole(ctx, userID, roleID)
	if err != nil {
		return UserRoleBinding{}, fmt.Errorf("assign role: %w", err)
	}
	return binding, nil
}

// SetBlock toggles a user's block flag. A timed block must expire in the
// future; clearing a block also clears any stored expiry.
func (s *Service) SetBlock(ctx context.Context, actor auth.Actor, userID string, blocked bool, until *time.Time) (UserRoleBinding, error) {
	if err := s.requireActor(ctx, actor, PermManageUsers); err != nil {
		return UserRoleBinding{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return UserRoleBinding{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if !blocked {
		until = nil
	}
	if until != nil && !until.After(s.now()) {
		return UserRoleBinding{}, fmt.Errorf("%w: block expiry must be in the future", ErrInvalidInput)
	}
	binding, err := s.store.SetBlock(ctx, userID, blocked, until)
	if err != nil {
		return UserRoleBinding{}, fmt.Errorf("set block: %w", err)
	}
	return binding, nil
}

// CreateUser registers a new identity and optionally assigns a role in the
// same call.
func (s *Service) CreateUser(ctx context.Context, actor auth.Actor, email, password, displayName, roleID string) (auth.User, error) {
	if err := s.requireActor(ctx, actor, PermManageUsers); err != nil {
		return auth.User{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return auth.User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(password) < 8 {
		return auth.User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return auth.User{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	user := auth.User{
		ID:           ids.New(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
		Status:       auth.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := s.store.CreateUser(ctx, user)
	if err != nil {
		return auth.User{}, err
	}
	if roleID != "" {
		if _, err := s.store.GetRole(ctx, roleID); err != nil {
			return auth.User{}, err
		}
		if _, err := s.store.AssignRole(ctx, created.ID, roleID); err != nil {
			return auth.User{}, fmt.Errorf("assign role: %w", err)
		}
	}
	return created, nil
}

// GetUser returns one identity together with its resolved binding and role.
func (s *Service) GetUser(ctx context.Context, actor auth.Actor, userID string) (UserWithRole, error) {
	if err := s.requireActor(ctx, actor, PermManageUsers); err != nil {
		return UserWithRole{}, err
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return UserWithRole{}, err
	}
	rows, err := s.joinBindings(ctx, []auth.User{user})
	if err != nil {
		return UserWithRole{}, err
	}
	return rows[0], nil
}

// ListUsers returns the user directory with role names attached.
func (s *Service) ListUsers(ctx context.Context, actor auth.Actor) ([]UserWithRole, error) {
	if err := s.requireActor(ctx, actor, PermManageUsers); err != nil {
		return nil, err
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return s.joinBindings(ctx, users)
}

func (s *Service) joinBindings(ctx context.Context, users []auth.User) ([]UserWithRole, error) {
	bindings, err := s.store.ListBindings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	byUser := make(map[string]UserRoleBinding, len(bindings))
	for _, b := range bindings {
		byUser[b.UserID] = b
	}
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	roleNames := make(map[string]string, len(roles))
	for _, r := range roles {
		roleNames[r.ID] = r.Name
	}

	out := make([]UserWithRole, 0, len(users))
	for _, u := range users {
		row := UserWithRole{User: u}
		if b, ok := byUser[u.ID]; ok {
			binding := b
			row.Binding = &binding
			row.RoleName = roleNames[b.RoleID]
		}
		out = append(out, row)
	}
	return out, nil
}

// requireActor rejects anonymous callers, then gates on the capability.
func (s *Service) requireActor(ctx context.Context, actor auth.Actor, key string) error {
	if actor.IsZero() {
		return ErrUnauthorized
	}
	return s.RequirePermission(ctx, actor.ID, key)
}

func (s *Service) blockInEffect(binding UserRoleBinding) bool {
	if !binding.IsBlocked {
		return false
	}
	if binding.BlockedUntil == nil {
		return true
	}
	return binding.BlockedUntil.After(s.now())
}
