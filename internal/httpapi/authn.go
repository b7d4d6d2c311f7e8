package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"custodia/internal/audit"
	"custodia/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/",
}
var publicPrefixes = []string{
	"/v1/auth/",
}

// withAuth authenticates every non-public request: a bearer token is
// required, verified, and resolved to a live principal attached to the
// request context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			_ = audit.LogEvent(r.Context(), "authn.rejected", map[string]any{
				"path":   r.URL.Path,
				"reason": err.Error(),
			})
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := a.auth.AuthenticateToken(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenMalformed),
				errors.Is(err, auth.ErrInvalidSignature),
				errors.Is(err, auth.ErrTokenExpired),
				errors.Is(err, auth.ErrInvalidCredentials):
				_ = audit.LogEvent(r.Context(), "authn.rejected", map[string]any{
					"path":   r.URL.Path,
					"reason": err.Error(),
				})
				handleAuthError(w, r, err)
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
