package httpapi

import (
	"net/http"
	"strings"
	"time"

	"custodia/internal/audit"
	"custodia/internal/auth"
)

type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
}

type authenticateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *auth.User `json:"user"`
}

// handleRegister serves POST /v1/auth/register/{role}. The path segment
// references the role granted to the new account, by id or by name.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	roleRef := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/auth/register/"), "/")
	if roleRef == "" || strings.Contains(roleRef, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.Register(r.Context(), auth.RegisterParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Phone:     req.Phone,
		Address:   req.Address,
	}, roleRef)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	token, expiresAt, err := a.auth.IssueToken(user)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
		"role":    roleRef,
	})
	writeJSON(w, http.StatusCreated, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	})
}

// handleAuthenticate serves POST /v1/auth/authenticate: credential check
// followed by token issuance.
func (a *API) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req authenticateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
			"email": strings.TrimSpace(strings.ToLower(req.Email)),
		})
		handleAuthError(w, r, err)
		return
	}
	token, expiresAt, err := a.auth.IssueToken(user)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	})
}
