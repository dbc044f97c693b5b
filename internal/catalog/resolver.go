package catalog

import (
	"context"
	"strings"

	"keygate.org/internal/identity"
)

// ServiceEndpoint is one resolved catalog row: the owning service plus the
// expanded URL triple for a tenant.
type ServiceEndpoint struct {
	ServiceID   string `json:"service_id"`
	ServiceName string `json:"service_name"`
	ServiceType string `json:"service_type"`
	Region      string `json:"region"`
	PublicURL   string `json:"public_url"`
	InternalURL string `json:"internal_url"`
	AdminURL    string `json:"admin_url"`
}

// Resolver expands endpoint templates into tenant-scoped endpoints.
type Resolver struct {
	store identity.Store
}

// NewResolver constructs a Resolver over the given store.
func NewResolver(store identity.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the service catalog for a tenant: every enabled template
// that is global or has a materialized endpoint row for this tenant, with
// placeholders substituted. The tenant's external uid fills %tenant_id%.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) ([]ServiceEndpoint, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, identity.ErrInvalidInput
	}
	tenant, err := r.store.Tenants().Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	templates, err := r.store.Endpoints().ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	bound, err := r.store.Endpoints().ListEndpointsByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	materialized := make(map[string]struct{}, len(bound))
	for _, e := range bound {
		materialized[e.TemplateID] = struct{}{}
	}

	var out []ServiceEndpoint
	for _, tpl := range templates {
		if !tpl.Enabled {
			continue
		}
		if !tpl.Global {
			if _, ok := materialized[tpl.ID]; !ok {
				continue
			}
		}
		svc, err := r.store.Services().Get(ctx, tpl.ServiceID)
		if err != nil {
			return nil, err
		}
		vars := map[string]string{
			VarTenantID:   tenant.UID,
			VarTenantName: tenant.Name,
			VarRegion:     tpl.Region,
		}
		entry := ServiceEndpoint{
			ServiceID:   svc.ID,
			ServiceName: svc.Name,
			ServiceType: svc.Type,
			Region:      tpl.Region,
		}
		if entry.PublicURL, err = Expand(tpl.PublicURL, vars); err != nil {
			return nil, err
		}
		if entry.InternalURL, err = Expand(tpl.InternalURL, vars); err != nil {
			return nil, err
		}
		if entry.AdminURL, err = Expand(tpl.AdminURL, vars); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}
