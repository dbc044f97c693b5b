package identity

import (
	"context"
	"time"
)

// Store describes persistence required by the identity core. Implementations
// enforce the uniqueness invariants at write time and return ErrConflict on
// violation, ErrNotFound on lookup of a missing id.
type Store interface {
	Users() UserStore
	Tenants() TenantStore
	Roles() RoleStore
	Services() ServiceStore
	Endpoints() EndpointStore
	Credentials() CredentialStore
	Tokens() TokenStore

	// CreateUserWithGrant atomically creates a user and applies an initial
	// role grant. Either both take effect or neither does.
	CreateUserWithGrant(ctx context.Context, u *User, a Assignment) error
}

// UserStore manages users. Disabling is a flag flip, never a delete.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByName(ctx context.Context, name string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, u *User) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
	SetPasswordHash(ctx context.Context, id, hash string) error
}

// TenantStore manages tenants.
type TenantStore interface {
	Create(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, id string) (*Tenant, error)
	GetByName(ctx context.Context, name string) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
	Update(ctx context.Context, t *Tenant) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

// RoleStore manages roles and role assignments.
type RoleStore interface {
	Create(ctx context.Context, r *Role) error
	Get(ctx context.Context, id string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Grant(ctx context.Context, a Assignment) error
	Revoke(ctx context.Context, userID, roleID string, scope RoleScope) error
	AssignmentsFor(ctx context.Context, userID string) ([]Assignment, error)
}

// ServiceStore manages the service catalog entries.
type ServiceStore interface {
	Create(ctx context.Context, s *Service) error
	Get(ctx context.Context, id string) (*Service, error)
	GetByName(ctx context.Context, name string) (*Service, error)
	List(ctx context.Context) ([]*Service, error)
}

// EndpointStore manages endpoint templates and their per-tenant bindings.
type EndpointStore interface {
	CreateTemplate(ctx context.Context, t *EndpointTemplate) error
	GetTemplate(ctx context.Context, id string) (*EndpointTemplate, error)
	ListTemplates(ctx context.Context) ([]*EndpointTemplate, error)
	SetTemplateEnabled(ctx context.Context, id string, enabled bool) error
	CreateEndpoint(ctx context.Context, e *Endpoint) error
	ListEndpointsByTenant(ctx context.Context, tenantID string) ([]*Endpoint, error)
}

// CredentialStore manages non-password credentials.
type CredentialStore interface {
	Create(ctx context.Context, c *Credential) error
	Get(ctx context.Context, id string) (*Credential, error)
	ListByUser(ctx context.Context, userID string) ([]*Credential, error)
	Delete(ctx context.Context, id string) error
}

// TokenStore manages persisted bearer tokens.
type TokenStore interface {
	Create(ctx context.Context, t *Token) error
	Get(ctx context.Context, id string) (*Token, error)
	MarkRevoked(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
}
