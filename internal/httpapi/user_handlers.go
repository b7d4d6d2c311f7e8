package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"custodia/internal/audit"
	"custodia/internal/auth"
)

type createUserRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	UserType  string `json:"user_type"`
}

type updateUserRequest struct {
	FirstName *string  `json:"first_name"`
	LastName  *string  `json:"last_name"`
	Phone     *string  `json:"phone"`
	Address   *string  `json:"address"`
	Password  *string  `json:"password"`
	RoleIDs   []string `json:"role_ids"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

type replaceRolesRequest struct {
	RoleIDs []string `json:"role_ids"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := a.auth.ListUsers(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		var req createUserRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.auth.CreateUser(r.Context(), auth.CreateUserParams{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Password:  req.Password,
			Phone:     req.Phone,
			Address:   req.Address,
			UserType:  req.UserType,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.create", map[string]any{
			"user_id": user.ID,
			"email":   user.Email,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.handleUser(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "roles":
		a.handleUserRoles(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUser(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		user, err := a.auth.FindUser(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPut:
		var req updateUserRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.auth.UpdateUser(r.Context(), id, auth.UpdateUserParams{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Phone:     req.Phone,
			Address:   req.Address,
			Password:  req.Password,
			RoleIDs:   req.RoleIDs,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.update", map[string]any{
			"user_id": user.ID,
		})
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		result, err := a.auth.DeleteUser(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.delete", map[string]any{
			"user_id": id,
			"success": result.Success,
		})
		// The outcome rides in the body either way; a missing user is not an
		// HTTP error on this endpoint.
		writeJSON(w, http.StatusOK, result)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodPost:
		var req assignRoleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		req.RoleID = strings.TrimSpace(req.RoleID)
		if req.RoleID == "" {
			writeError(w, r, http.StatusBadRequest, "role_id is required")
			return
		}
		user, err := a.auth.AddRoleToUser(r.Context(), userID, req.RoleID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.role.assign", map[string]any{
			"user_id": userID,
			"role_id": req.RoleID,
		})
		writeJSON(w, http.StatusOK, user)
	case http.MethodPut:
		var req replaceRolesRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.auth.ReplaceUserRoles(r.Context(), userID, req.RoleIDs)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.roles.replace", map[string]any{
			"user_id": userID,
			"count":   len(req.RoleIDs),
		})
		writeJSON(w, http.StatusOK, user)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodPut)
	}
}
