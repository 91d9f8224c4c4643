package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"autopark.kz/internal/auth"
	"autopark.kz/internal/rbac"
)

func (s *Store) CreateRole(ctx context.Context, role rbac.Role) (rbac.Role, error) {
	permJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return rbac.Role{}, fmt.Errorf("marshal permissions: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description, is_active, permissions, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id, name, description, is_active, permissions, created_at, updated_at
	`, role.ID, role.Name, role.Description, role.IsActive, permJSON, role.CreatedAt, role.UpdatedAt)
	created, err := scanRole(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.Role{}, rbac.ErrConflict
		}
		return rbac.Role{}, err
	}
	return created, nil
}

func (s *Store) GetRole(ctx context.Context, roleID string) (rbac.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, description, is_active, permissions, created_at, updated_at
		from roles
		where id = $1
	`, roleID)
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Role{}, rbac.ErrNotFound
	}
	if err != nil {
		return rbac.Role{}, err
	}
	return role, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, is_active, permissions, created_at, updated_at
		from roles
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) UpdateRole(ctx context.Context, roleID string, upd rbac.RoleUpdate) (rbac.Role, error) {
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	if upd.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", idx))
		args = append(args, *upd.Description)
		idx++
	}
	if upd.IsActive != nil {
		setClauses = append(setClauses, fmt.Sprintf("is_active = $%d", idx))
		args = append(args, *upd.IsActive)
		idx++
	}
	if upd.Permissions != nil {
		permJSON, err := json.Marshal(*upd.Permissions)
		if err != nil {
			return rbac.Role{}, fmt.Errorf("marshal permissions: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("permissions = $%d", idx))
		args = append(args, permJSON)
		idx++
	}
	if len(setClauses) > 0 {
		setClauses = append(setClauses, "updated_at = now()")
		query := fmt.Sprintf(`update roles set %s where id = $%d`, strings.Join(setClauses, ", "), idx)
		args = append(args, roleID)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return rbac.Role{}, rbac.ErrConflict
			}
			return rbac.Role{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return rbac.Role{}, err
		}
		if aff == 0 {
			return rbac.Role{}, rbac.ErrNotFound
		}
	}
	return s.GetRole(ctx, roleID)
}

func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, roleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return rbac.ErrRoleInUse
		}
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

func (s *Store) CountBindingsForRole(ctx context.Context, roleID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from user_role_bindings where role_id = $1
	`, roleID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) GetBinding(ctx context.Context, userID string) (rbac.UserRoleBinding, error) {
	row := s.db.QueryRowContext(ctx, `
		select user_id, coalesce(role_id, ''), is_blocked, blocked_until, created_at
		from user_role_bindings
		where user_id = $1
	`, userID)
	binding, err := scanBinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.UserRoleBinding{}, rbac.ErrNotFound
	}
	if err != nil {
		return rbac.UserRoleBinding{}, err
	}
	return binding, nil
}

func (s *Store) ListBindings(ctx context.Context) ([]rbac.UserRoleBinding, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, coalesce(role_id, ''), is_blocked, blocked_until, created_at
		from user_role_bindings
		order by user_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []rbac.UserRoleBinding
	for rows.Next() {
		binding, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, binding)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bindings, nil
}

// AssignRole upserts the binding in one statement so two concurrent assigns
// cannot produce duplicate rows. An expired timed block is cleared by the
// same write.
func (s *Store) AssignRole(ctx context.Context, userID, roleID string) (rbac.UserRoleBinding, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into user_role_bindings (user_id, role_id)
		values ($1, nullif($2, ''))
		on conflict (user_id) do update
		set role_id = excluded.role_id,
		    is_blocked = case
		        when user_role_bindings.blocked_until is not null and user_role_bindings.blocked_until <= now()
		        then false else user_role_bindings.is_blocked end,
		    blocked_until = case
		        when user_role_bindings.blocked_until is not null and user_role_bindings.blocked_until <= now()
		        then null else user_role_bindings.blocked_until end
		returning user_id, coalesce(role_id, ''), is_blocked, blocked_until, created_at
	`, userID, roleID)
	binding, err := scanBinding(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return rbac.UserRoleBinding{}, rbac.ErrNotFound
		}
		return rbac.UserRoleBinding{}, err
	}
	return binding, nil
}

func (s *Store) SetBlock(ctx context.Context, userID string, blocked bool, until *time.Time) (rbac.UserRoleBinding, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into user_role_bindings (user_id, is_blocked, blocked_until)
		values ($1, $2, $3)
		on conflict (user_id) do update
		set is_blocked = excluded.is_blocked,
		    blocked_until = excluded.blocked_until
		returning user_id, coalesce(role_id, ''), is_blocked, blocked_until, created_at
	`, userID, blocked, until)
	binding, err := scanBinding(row)
	if err != nil {
		return rbac.UserRoleBinding{}, err
	}
	return binding, nil
}

func (s *Store) CreateUser(ctx context.Context, user auth.User) (auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, display_name, password_hash, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id, email, display_name, password_hash, status, created_at, updated_at
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash, user.Status, user.CreatedAt, user.UpdatedAt)
	created, err := scanUser(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.User{}, rbac.ErrConflict
		}
		return auth.User{}, err
	}
	return created, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, email, display_name, password_hash, status, created_at, updated_at
		from users
		where id = $1
	`, userID)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, rbac.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	return user, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, email, display_name, password_hash, status, created_at, updated_at
		from users
		where email = $1
	`, email)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, rbac.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, email, display_name, password_hash, status, created_at, updated_at
		from users
		order by email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func scanRole(row rowScanner) (rbac.Role, error) {
	var (
		role    rbac.Role
		rawPerm []byte
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &rawPerm, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return rbac.Role{}, err
	}
	if len(rawPerm) > 0 {
		if err := json.Unmarshal(rawPerm, &role.Permissions); err != nil {
			return rbac.Role{}, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return role, nil
}

func scanBinding(row rowScanner) (rbac.UserRoleBinding, error) {
	var (
		binding rbac.UserRoleBinding
		until   sql.NullTime
	)
	if err := row.Scan(&binding.UserID, &binding.RoleID, &binding.IsBlocked, &until, &binding.CreatedAt); err != nil {
		return rbac.UserRoleBinding{}, err
	}
	if until.Valid {
		t := until.Time.UTC()
		binding.BlockedUntil = &t
	}
	return binding, nil
}

func scanUser(row rowScanner) (auth.User, error) {
	var user auth.User
	if err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.Status, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return auth.User{}, err
	}
	return user, nil
}
