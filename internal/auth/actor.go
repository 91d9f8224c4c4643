package auth

import "time"

// Actor is the resolved authenticated identity on whose behalf an operation
// runs. Core services take it explicitly; only the HTTP boundary pulls it out
// of ambient request state.
type Actor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// IsZero reports whether no identity was resolved.
func (a Actor) IsZero() bool {
	return a.ID == ""
}

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is a login-capable account. Role membership and block state live in a
// separate binding record keyed by the user id.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
