package httpapi

import (
	"fmt"
	"net/http"

	"keygate.org/internal/audit"
	"keygate.org/internal/identity"
	"keygate.org/internal/ids"
)

type createServiceRequest struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	OwnerID     string `json:"owner_id"`
}

type createTemplateRequest struct {
	ServiceID   string `json:"service_id"`
	Region      string `json:"region"`
	PublicURL   string `json:"public_url"`
	InternalURL string `json:"internal_url"`
	AdminURL    string `json:"admin_url"`
	Global      bool   `json:"is_global"`
	Enabled     bool   `json:"enabled"`
}

type createEndpointRequest struct {
	TemplateID string `json:"template_id"`
	TenantID   string `json:"tenant_id"`
}

func (a *API) handleServices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureRole(w, r, RoleAdmin) {
			return
		}
		services, err := a.dir.Store().Services().List(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, services)
	case http.MethodPost:
		if !a.ensureRole(w, r, RoleAdmin) {
			return
		}
		var req createServiceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Name == "" || req.Type == "" {
			respondError(w, http.StatusBadRequest, "name and type are required")
			return
		}
		svc := &identity.Service{
			ID:          ids.New(),
			Name:        req.Name,
			Type:        req.Type,
			Description: req.Description,
			OwnerID:     req.OwnerID,
		}
		if err := a.dir.Store().Services().Create(r.Context(), svc); err != nil {
			handleError(w, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "service.create", map[string]any{"service_id": svc.ID, "name": svc.Name})
		w.Header().Set("Location", fmt.Sprintf("/v1/services/%s", svc.ID))
		writeJSON(w, http.StatusCreated, svc)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEndpointTemplates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureRole(w, r, RoleAdmin) {
			return
		}
		templates, err := a.dir.Store().Endpoints().ListTemplates(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, templates)
	case http.MethodPost:
		if !a.ensureRole(w, r, RoleAdmin) {
			return
		}
		var req createTemplateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.ServiceID == "" || req.Region == "" {
			respondError(w, http.StatusBadRequest, "service_id and region are required")
			return
		}
		tpl := &identity.EndpointTemplate{
			ID:          ids.New(),
			ServiceID:   req.ServiceID,
			Region:      req.Region,
			PublicURL:   req.PublicURL,
			InternalURL: req.InternalURL,
			AdminURL:    req.AdminURL,
			Global:      req.Global,
			Enabled:     req.Enabled,
		}
		if err := a.dir.Store().Endpoints().CreateTemplate(r.Context(), tpl); err != nil {
			handleError(w, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "endpoint_template.create", map[string]any{
			"template_id": tpl.ID,
			"service_id":  tpl.ServiceID,
			"region":      tpl.Region,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/endpoint-templates/%s", tpl.ID))
		writeJSON(w, http.StatusCreated, tpl)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !a.ensureRole(w, r, RoleAdmin) {
		return
	}
	var req createEndpointRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TemplateID == "" || req.TenantID == "" {
		respondError(w, http.StatusBadRequest, "template_id and tenant_id are required")
		return
	}
	ep := &identity.Endpoint{
		ID:         ids.New(),
		TemplateID: req.TemplateID,
		TenantID:   req.TenantID,
	}
	if err := a.dir.Store().Endpoints().CreateEndpoint(r.Context(), ep); err != nil {
		handleError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "endpoint.create", map[string]any{
		"endpoint_id": ep.ID,
		"template_id": ep.TemplateID,
		"tenant_id":   ep.TenantID,
	})
	writeJSON(w, http.StatusCreated, ep)
}

// handleTenantCatalog resolves the service catalog for a tenant. Any
// authenticated principal may read the catalog of its own token's tenant;
// other tenants require Admin.
func (a *API) handleTenantCatalog(w http.ResponseWriter, r *http.Request, tenantID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if principal.TenantID != tenantID && !principal.HasRole(RoleAdmin) {
		respondError(w, http.StatusForbidden, "insufficient privileges")
		return
	}
	entries, err := a.resolver.Resolve(r.Context(), tenantID)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
