package rbac

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("rbac: not found")
	ErrUnauthorized = errors.New("rbac: unauthorized")
	ErrForbidden    = errors.New("rbac: forbidden")
	ErrBlocked      = errors.New("rbac: user is blocked")
	ErrRoleInUse    = errors.New("rbac: role is assigned to users")
	ErrConflict     = errors.New("rbac: already exists")
	ErrInvalidInput = errors.New("rbac: invalid input")
)

// BlockedError reports a denied resolution for a blocked identity, carrying
// the expiry so callers can surface it. It unwraps to ErrBlocked.
type BlockedError struct {
	Until *time.Time
}

func (e *BlockedError) Error() string {
	if e.Until == nil {
		return "rbac: user is blocked"
	}
	return fmt.Sprintf("rbac: user is blocked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *BlockedError) Unwrap() error { return ErrBlocked }
