package httpapi

import (
	"net/http"
	"strings"
	"time"

	"keygate.org/internal/audit"
	"keygate.org/internal/identity"
)

const defaultTokenTTL = 24 * time.Hour

type issueTokenRequest struct {
	Name       string `json:"name"`
	Password   string `json:"password"`
	TenantID   string `json:"tenant_id"`
	TenantName string `json:"tenant_name"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

type tokenResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Roles     []string  `json:"roles,omitempty"`
}

// handleTokens authenticates name/password and issues a bearer token bound
// to the resolved tenant.
func (a *API) handleTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req issueTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "name and password are required")
		return
	}

	// Lookup failures and bad passwords are indistinguishable to the caller.
	user, err := a.dir.Store().Users().GetByName(r.Context(), req.Name)
	if err != nil || !a.verifier.Verify(r.Context(), user.ID, req.Password, identity.CredentialPassword) {
		respondError(w, http.StatusUnauthorized, "authentication failed")
		return
	}

	tenantID, err := a.resolveTenant(r, &req, user)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication failed")
		return
	}

	ttl := defaultTokenTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	tok, err := a.tokens.Issue(r.Context(), user.ID, tenantID, ttl)
	if err != nil {
		handleError(w, err)
		return
	}
	roles, err := a.dir.EffectiveRoles(r.Context(), user.ID, tenantID)
	if err != nil {
		handleError(w, err)
		return
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}

	_ = audit.LogEvent(r.Context(), "token.issue", map[string]any{
		"user_id":   user.ID,
		"tenant_id": tenantID,
	})
	writeJSON(w, http.StatusCreated, tokenResponse{
		ID:        tok.ID,
		UserID:    tok.UserID,
		TenantID:  tok.TenantID,
		ExpiresAt: tok.ExpiresAt,
		Roles:     names,
	})
}

func (a *API) resolveTenant(r *http.Request, req *issueTokenRequest, user *identity.User) (string, error) {
	switch {
	case req.TenantID != "":
		return req.TenantID, nil
	case req.TenantName != "":
		tenant, err := a.dir.Store().Tenants().GetByName(r.Context(), req.TenantName)
		if err != nil {
			return "", err
		}
		return tenant.ID, nil
	case user.DefaultTenantID != "":
		return user.DefaultTenantID, nil
	default:
		return "", identity.ErrInvalidInput
	}
}

// handleTokenResource validates or revokes a single token.
func (a *API) handleTokenResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/tokens/"), "/")
	if id == "" {
		respondError(w, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		tok, err := a.tokens.Validate(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse{
			ID:        tok.ID,
			UserID:    tok.UserID,
			TenantID:  tok.TenantID,
			ExpiresAt: tok.ExpiresAt,
		})
	case http.MethodDelete:
		if !a.ensureRole(w, r, RoleAdmin) {
			return
		}
		if err := a.tokens.Revoke(r.Context(), id); err != nil {
			handleError(w, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "token.revoke", map[string]any{"token_hint": hintFor(id)})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

// hintFor truncates a token id so full bearer strings never reach logs.
func hintFor(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
