package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"keygate.org/internal/audit"
	"keygate.org/internal/identity"
)

type createUserRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	DefaultTenantID string `json:"default_tenant_id"`
	RoleID          string `json:"role_id"`
	RoleTenantID    string `json:"role_tenant_id"`
}

type createTenantRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type createRoleRequest struct {
	Name        string `json:"name"`
	ServiceID   string `json:"service_id"`
	Description string `json:"description"`
}

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureRole(w, r, RoleAdmin) {
			return
		}
		users, err := a.dir.Store().Users().List(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	case http.MethodPost:
		if !a.ensureRole(w, r, RoleAdmin) {
			return
		}
		a.createUser(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	u := &identity.User{
		Name:            req.Name,
		Email:           req.Email,
		Enabled:         true,
		DefaultTenantID: req.DefaultTenantID,
	}
	var err error
	if req.RoleID != "" {
		scope := identity.GlobalScope()
		if req.RoleTenantID != "" {
			scope = identity.TenantScope(req.RoleTenantID)
		}
		u, err = a.dir.CreateUserWithGrant(r.Context(), u, req.RoleID, scope)
	} else {
		u, err = a.dir.CreateUser(r.Context(), u)
	}
	if err != nil {
		handleError(w, err)
		return
	}
	if req.Password != "" {
		if err := a.verifier.SetPassword(r.Context(), u.ID, req.Password); err != nil {
			handleError(w, err)
			return
		}
	}
	_ = audit.LogEvent(r.Context(), "user.create", map[string]any{"user_id": u.ID, "name": u.Name})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", u.ID))
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		respondError(w, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleUser(w, r, userID)
	case len(parts) == 2 && parts[1] == "enabled":
		a.handleUserEnabled(w, r, userID)
	case len(parts) == 2 && parts[1] == "password":
		a.handleUserPassword(w, r, userID)
	case len(parts) == 2 && parts[1] == "roles":
		a.handleUserRoles(w, r, userID)
	case len(parts) == 3 && parts[1] == "roles":
		a.handleUserRoleGrant(w, r, userID, parts[2])
	default:
		respondError(w, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUser(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !a.ensureRole(w, r, RoleAdmin) {
		return
	}
	u, err := a.dir.Store().Users().Get(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleUserEnabled(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, http.MethodPut)
		return
	}
	if !a.ensureRole(w, r, RoleAdmin) {
		return
	}
	var req enabledRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var err error
	if req.Enabled {
		err = a.dir.EnableUser(r.Context(), userID)
	} else {
		err = a.dir.DisableUser(r.Context(), userID)
	}
	if err != nil {
		handleError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.enabled", map[string]any{"user_id": userID, "enabled": req.Enabled})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserPassword(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, http.MethodPut)
		return
	}
	if !a.ensureRole(w, r, RoleAdmin) {
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Password == "" {
		respondError(w, http.StatusBadRequest, "password is required")
		return
	}
	if err := a.verifier.SetPassword(r.Context(), userID, req.Password); err != nil {
		handleError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.password", map[string]any{"user_id": userID})
	w.WriteHeader(http.StatusNoContent)
}

// handleUserRoles lists the user's effective roles for a tenant.
func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !a.ensureRole(w, r, RoleAdmin) {
		return
	}
	tenantID := r.URL.Query().Get("tenant_id")
	roles, err := a.dir.EffectiveRoles(r.Context(), userID, tenantID)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

// handleUserRoleGrant grants or revokes a role. An absent tenant_id query
// parameter means a global grant.
func (a *API) handleUserRoleGrant(w http.ResponseWriter, r *http.Request, userID, roleID string) {
	if !a.ensureRole(w, r, RoleAdmin) {
		return
	}
	scope := identity.GlobalScope()
	if tid := r.URL.Query().Get("tenant_id"); tid != "" {
		scope = identity.TenantScope(tid)
	}
	switch r.Method {
	case http.MethodPut:
		if err := a.dir.Grant(r.Context(), userID, roleID, scope); err != nil {
			handleError(w, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "role.grant", grantFields(userID, roleID, scope))
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := a.dir.Revoke(r.Context(), userID, roleID, scope); err != nil {
			handleError(w, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "role.revoke", grantFields(userID, roleID, scope))
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodPut, http.MethodDelete)
	}
}

func grantFields(userID, roleID string, scope identity.RoleScope) map[string]any {
	fields := map[string]any{"user_id": userID, "role_id": roleID}
	if tid, ok := scope.TenantID(); ok {
		fields["tenant_id"] = tid
	} else {
		fields["scope"] = "global"
	}
	return fields
}

func (a *API) handleTenants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureRole(w, r, RoleAdmin) {
			return
		}
		tenants, err := a.dir.Store().Tenants().List(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tenants)
	case http.MethodPost:
		if !a.ensureRole(w, r, RoleAdmin) {
			return
		}
		var req createTenantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		t, err := a.dir.CreateTenant(r.Context(), &identity.Tenant{
			Name:        req.Name,
			Description: req.Description,
			Enabled:     true,
		})
		if err != nil {
			handleError(w, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "tenant.create", map[string]any{"tenant_id": t.ID, "name": t.Name})
		w.Header().Set("Location", fmt.Sprintf("/v1/tenants/%s", t.ID))
		writeJSON(w, http.StatusCreated, t)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTenantResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/tenants/"), "/")
	if path == "" {
		respondError(w, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	tenantID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		if !a.ensureRole(w, r, RoleAdmin) {
			return
		}
		t, err := a.dir.Store().Tenants().Get(r.Context(), tenantID)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case len(parts) == 2 && parts[1] == "enabled":
		a.handleTenantEnabled(w, r, tenantID)
	case len(parts) == 2 && parts[1] == "catalog":
		a.handleTenantCatalog(w, r, tenantID)
	default:
		respondError(w, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleTenantEnabled(w http.ResponseWriter, r *http.Request, tenantID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, http.MethodPut)
		return
	}
	if !a.ensureRole(w, r, RoleAdmin) {
		return
	}
	var req enabledRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var err error
	if req.Enabled {
		err = a.dir.Store().Tenants().SetEnabled(r.Context(), tenantID, true)
	} else {
		err = a.dir.DisableTenant(r.Context(), tenantID)
	}
	if err != nil {
		handleError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "tenant.enabled", map[string]any{"tenant_id": tenantID, "enabled": req.Enabled})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureRole(w, r, RoleAdmin) {
			return
		}
		roles, err := a.dir.Store().Roles().List(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, roles)
	case http.MethodPost:
		if !a.ensureRole(w, r, RoleAdmin) {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.dir.CreateRole(r.Context(), &identity.Role{
			Name:        req.Name,
			ServiceID:   req.ServiceID,
			Description: req.Description,
		})
		if err != nil {
			handleError(w, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "role.create", map[string]any{"role_id": role.ID, "name": role.Name})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}
