package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"keygate.org/internal/identity"
	"keygate.org/internal/token"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func isPublicRequest(r *http.Request) bool {
	// Token issuance is how a client gets credentials in the first place.
	if r.URL.Path == "/v1/tokens" && r.Method == http.MethodPost {
		return true
	}
	for _, p := range publicPaths {
		if r.URL.Path == p {
			return true
		}
	}
	return false
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.tokens == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicRequest(r) {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}

		tok, err := a.tokens.Validate(r.Context(), raw)
		if err != nil {
			switch {
			case errors.Is(err, token.ErrTokenExpired):
				respondError(w, http.StatusUnauthorized, "token expired")
			case errors.Is(err, token.ErrPrincipalDisabled):
				respondError(w, http.StatusForbidden, "principal disabled")
			case errors.Is(err, token.ErrInvalidToken):
				respondError(w, http.StatusUnauthorized, "invalid token")
			default:
				respondError(w, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		user, err := a.dir.Store().Users().Get(r.Context(), tok.UserID)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		roles, err := a.dir.EffectiveRoles(r.Context(), tok.UserID, tok.TenantID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := identity.ContextWithPrincipal(r.Context(), identity.NewPrincipal(user, tok.TenantID, roles))
		ctx = identity.ContextWithToken(ctx, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ensureRole writes a 403 and returns false when the caller lacks the role.
func (a *API) ensureRole(w http.ResponseWriter, r *http.Request, role string) bool {
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !principal.HasRole(role) {
		respondError(w, http.StatusForbidden, "insufficient privileges")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	tok := strings.TrimSpace(header[len(bearer):])
	if tok == "" {
		return "", errors.New("missing bearer token")
	}
	return tok, nil
}
