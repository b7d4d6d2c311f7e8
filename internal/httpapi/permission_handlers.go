package httpapi

import (
	"fmt"
	"net/http"

	"custodia/internal/audit"
)

type createPermissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		perms, err := a.auth.ListPermissions(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
	case http.MethodPost:
		var req createPermissionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		perm, err := a.auth.CreatePermission(r.Context(), req.Name, req.Description)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "permission.create", map[string]any{
			"permission_id": perm.ID,
			"name":          perm.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/permissions/%s", perm.ID))
		writeJSON(w, http.StatusCreated, perm)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}
