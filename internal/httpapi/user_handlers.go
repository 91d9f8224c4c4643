package httpapi

import (
	"net/http"
	"strings"
	"time"
)

type createUserRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	RoleID      string `json:"role_id"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

type setBlockRequest struct {
	Blocked bool       `json:"blocked"`
	Until   *time.Time `json:"until"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFor(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		users, err := a.rbac.ListUsers(r.Context(), actor)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		respond(w, http.StatusOK, users)

	case http.MethodPost:
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, kindInvalidInput, err.Error())
			return
		}
		user, err := a.rbac.CreateUser(r.Context(), actor, req.Email, req.Password, req.DisplayName, req.RoleID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.audit(r.Context(), "user.create", "user", user.ID, map[string]string{
			"email":   user.Email,
			"role_id": req.RoleID,
		})
		w.Header().Set("Location", "/v1/users/"+user.ID)
		respond(w, http.StatusCreated, user)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleUserResource routes /v1/users/{id}/role and /v1/users/{id}/block.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	parts := strings.Split(path, "/")
	actor, ok := actorFor(w, r)
	if !ok {
		return
	}

	if len(parts) == 1 && parts[0] != "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		row, err := a.rbac.GetUser(r.Context(), actor, parts[0])
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		respond(w, http.StatusOK, row)
		return
	}

	if len(parts) != 2 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, kindNotFound, "resource not found")
		return
	}
	userID := parts[0]

	switch parts[1] {
	case "role":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		var req assignRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, kindInvalidInput, err.Error())
			return
		}
		binding, err := a.rbac.AssignRole(r.Context(), actor, userID, req.RoleID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.audit(r.Context(), "user.role.assign", "user", userID, map[string]string{
			"role_id": req.RoleID,
		})
		respond(w, http.StatusOK, binding)

	case "block":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		var req setBlockRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, kindInvalidInput, err.Error())
			return
		}
		binding, err := a.rbac.SetBlock(r.Context(), actor, userID, req.Blocked, req.Until)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		event := "user.unblock"
		if req.Blocked {
			event = "user.block"
		}
		a.audit(r.Context(), event, "user", userID, nil)
		respond(w, http.StatusOK, binding)

	default:
		writeError(w, r, http.StatusNotFound, kindNotFound, "resource not found")
	}
}
