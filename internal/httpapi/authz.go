package httpapi

import (
	"net/http"
	"strings"

	"custodia/internal/audit"
	"custodia/internal/auth"
	"custodia/internal/obs"
)

// routeRule binds a path prefix to the permissions accepted per method.
// Holding any one of the listed permissions grants access. The user surface
// accepts the whole management trio per method so a role manager can list
// users without also holding user permissions.
type routeRule struct {
	prefix string
	perms  map[string][]string
}

var protectedRoutes = []routeRule{
	{
		prefix: "/v1/users",
		perms: map[string][]string{
			http.MethodPost:   {auth.PermCreateUser, auth.PermCreateRole, auth.PermCreatePermission},
			http.MethodGet:    {auth.PermReadUser, auth.PermReadRole, auth.PermReadPermission},
			http.MethodPut:    {auth.PermUpdateUser, auth.PermUpdateRole, auth.PermUpdatePermission},
			http.MethodDelete: {auth.PermDeleteUser, auth.PermDeleteRole, auth.PermDeletePermission},
		},
	},
	{
		prefix: "/v1/roles",
		perms: map[string][]string{
			http.MethodPost:   {auth.PermCreateRole},
			http.MethodGet:    {auth.PermReadRole},
			http.MethodPut:    {auth.PermUpdateRole},
			http.MethodDelete: {auth.PermDeleteRole},
		},
	},
	{
		prefix: "/v1/permissions",
		perms: map[string][]string{
			http.MethodPost:   {auth.PermCreatePermission},
			http.MethodGet:    {auth.PermReadPermission},
			http.MethodPut:    {auth.PermUpdatePermission},
			http.MethodDelete: {auth.PermDeletePermission},
		},
	},
}

// ruleFor returns the longest-prefix rule matching path, or nil. A match
// requires the next path byte to be a separator so /v1/usersx never matches
// /v1/users.
func ruleFor(path string) *routeRule {
	var best *routeRule
	for i := range protectedRoutes {
		rule := &protectedRoutes[i]
		if path != rule.prefix && !strings.HasPrefix(path, rule.prefix+"/") {
			continue
		}
		if best == nil || len(rule.prefix) > len(best.prefix) {
			best = rule
		}
	}
	return best
}

// withAuthz is the authorization gate. It runs after authentication, so any
// request reaching it on a protected path carries a principal. Routes outside
// the table require authentication only.
func (a *API) withAuthz(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		rule := ruleFor(r.URL.Path)
		if rule == nil {
			next.ServeHTTP(w, r)
			return
		}

		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}
		required := rule.perms[r.Method]
		if len(required) == 0 {
			// Method not in the table: authentication suffices.
			next.ServeHTTP(w, r)
			return
		}
		if !principal.HasAnyPermission(required...) {
			obs.ObserveAuthzDecision("denied")
			_ = audit.LogEvent(r.Context(), "authz.denied", map[string]any{
				"method":   r.Method,
				"path":     r.URL.Path,
				"required": required,
			})
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		obs.ObserveAuthzDecision("granted")
		next.ServeHTTP(w, r)
	})
}
