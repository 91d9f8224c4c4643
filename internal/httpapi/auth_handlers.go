package httpapi

import (
	"net/http"
	"strings"
	"time"

	"autopark.kz/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      sessionUser `json:"user"`
}

type sessionUser struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

const tokenTTL = 12 * time.Hour

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, kindInvalidInput, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, kindInvalidInput, "email and password are required")
		return
	}

	user, err := a.rbac.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	actor := auth.Actor{ID: user.ID, DisplayName: user.DisplayName}
	token, err := auth.GenerateToken(actor, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, kindInternal, "token generation failed")
		return
	}

	a.audit(r.Context(), "auth.login", "user", user.ID, map[string]string{
		"email": user.Email,
	})

	respond(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(tokenTTL),
		User: sessionUser{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
		},
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := actorFor(w, r)
	if !ok {
		return
	}

	res, err := a.rbac.Resolve(r.Context(), actor.ID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"user": map[string]string{
			"id":           actor.ID,
			"display_name": actor.DisplayName,
		},
		"role":    res.Role,
		"binding": res.Binding,
	})
}
