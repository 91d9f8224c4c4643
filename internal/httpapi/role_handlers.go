package httpapi

import (
	"net/http"
	"strings"

	"autopark.kz/internal/rbac"
)

type updateRoleRequest struct {
	Name        *string             `json:"name"`
	Description *string             `json:"description"`
	IsActive    *bool               `json:"is_active"`
	Permissions *rbac.PermissionBag `json:"permissions"`
}

func (a *API) handleRolesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		actor, ok := actorFor(w, r)
		if !ok {
			return
		}
		roles, err := a.rbac.ListRoles(r.Context(), actor)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		respond(w, http.StatusOK, roles)

	case http.MethodPost:
		actor, ok := actorFor(w, r)
		if !ok {
			return
		}
		var draft rbac.RoleDraft
		if err := decodeJSON(w, r, &draft); err != nil {
			writeError(w, r, http.StatusBadRequest, kindInvalidInput, err.Error())
			return
		}
		role, err := a.rbac.CreateRole(r.Context(), actor, draft)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.audit(r.Context(), "role.create", "role", role.ID, map[string]string{
			"name": role.Name,
		})
		w.Header().Set("Location", "/v1/roles/"+role.ID)
		respond(w, http.StatusCreated, role)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	roleID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if roleID == "" || strings.Contains(roleID, "/") {
		writeError(w, r, http.StatusNotFound, kindNotFound, "resource not found")
		return
	}
	actor, ok := actorFor(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		role, err := a.rbac.GetRole(r.Context(), actor, roleID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		respond(w, http.StatusOK, role)

	case http.MethodPatch:
		var req updateRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, kindInvalidInput, err.Error())
			return
		}
		role, err := a.rbac.UpdateRole(r.Context(), actor, roleID, rbac.RoleUpdate{
			Name:        req.Name,
			Description: req.Description,
			IsActive:    req.IsActive,
			Permissions: req.Permissions,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.audit(r.Context(), "role.update", "role", role.ID, map[string]string{
			"name": role.Name,
		})
		respond(w, http.StatusOK, role)

	case http.MethodDelete:
		if err := a.rbac.DeleteRole(r.Context(), actor, roleID); err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.audit(r.Context(), "role.delete", "role", roleID, nil)
		respond(w, http.StatusOK, map[string]string{"id": roleID})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}
