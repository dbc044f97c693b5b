package identity

import "time"

// User is a human or service account known to the identity service.
// Name and UID are each unique across all users.
type User struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	UID             string    `json:"uid"`
	Email           string    `json:"email,omitempty"`
	Enabled         bool      `json:"enabled"`
	DefaultTenantID string    `json:"default_tenant_id,omitempty"`
	PasswordHash    string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Tenant is the isolation boundary under which users hold roles and
// resources are scoped. Name and UID are each unique across tenants.
type Tenant struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	UID         string    `json:"uid"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role groups capabilities. The (Name, ServiceID) pair is unique: role
// names are unique globally or scoped to an owning service.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ServiceID   string    `json:"service_id,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoleScope says where a role grant applies: everywhere, or inside one
// tenant. The zero value is the global scope.
type RoleScope struct {
	tenantID string
}

// GlobalScope returns the scope covering every tenant.
func GlobalScope() RoleScope { return RoleScope{} }

// TenantScope returns a scope restricted to a single tenant.
func TenantScope(tenantID string) RoleScope { return RoleScope{tenantID: tenantID} }

// IsGlobal reports whether the scope covers every tenant.
func (s RoleScope) IsGlobal() bool { return s.tenantID == "" }

// TenantID returns the scoping tenant, if any.
func (s RoleScope) TenantID() (string, bool) {
	if s.tenantID == "" {
		return "", false
	}
	return s.tenantID, true
}

// Assignment grants a role to a user within a scope. The
// (UserID, RoleID, Scope) triple is unique; granting it twice is a no-op.
type Assignment struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	Scope     RoleScope `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Service is a catalog entry (compute, identity, object-store, ...).
type Service struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// EndpointTemplate is a parametrized per-region URL triple for a service.
// Placeholders like %tenant_id% are substituted at catalog resolution.
type EndpointTemplate struct {
	ID          string    `json:"id"`
	ServiceID   string    `json:"service_id"`
	Region      string    `json:"region"`
	PublicURL   string    `json:"public_url"`
	InternalURL string    `json:"internal_url"`
	AdminURL    string    `json:"admin_url"`
	Global      bool      `json:"is_global"`
	Enabled     bool      `json:"enabled"`
	VersionID   string    `json:"version_id,omitempty"`
	VersionList string    `json:"version_list,omitempty"`
	VersionInfo string    `json:"version_info,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Endpoint materializes a template for one tenant. Unique per
// (TemplateID, TenantID).
type Endpoint struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"template_id"`
	TenantID   string    `json:"tenant_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Credential types understood by the verifier.
const (
	CredentialPassword = "password"
	CredentialEC2      = "ec2"
)

// Credential is a non-password secret held by a user, optionally scoped
// to a tenant. One user may hold several credentials of different types.
type Credential struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Type      string    `json:"type"`
	Key       string    `json:"key"`
	Secret    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Token is a persisted bearer token bound to a user and tenant. The ID
// is the opaque bearer string and is globally unique.
type Token struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}
