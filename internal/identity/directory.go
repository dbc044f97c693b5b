package identity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"keygate.org/internal/ids"
)

// Directory provides validated entity operations and role resolution on
// top of a Store.
type Directory struct {
	store Store
	now   func() time.Time
}

// DirectoryOption configures Directory behavior.
type DirectoryOption func(*Directory)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) DirectoryOption {
	return func(s *Directory) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewDirectory constructs a Directory over the given store.
func NewDirectory(store Store, opts ...DirectoryOption) (*Directory, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	s := &Directory{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Store exposes the underlying store for collaborators that need raw access.
func (s *Directory) Store() Store { return s.store }

// CreateUser validates and persists a new user. Name and UID must be unique.
func (s *Directory) CreateUser(ctx context.Context, u *User) (*User, error) {
	if u == nil {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	u.Name = strings.TrimSpace(u.Name)
	if u.Name == "" {
		return nil, fmt.Errorf("%w: user name is required", ErrInvalidInput)
	}
	if u.Email != "" && !strings.Contains(u.Email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.UID == "" {
		u.UID = ids.UID()
	}
	u.CreatedAt = s.now().UTC()
	u.UpdatedAt = u.CreatedAt
	if err := s.store.Users().Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUserWithGrant creates a user and applies an initial role grant as a
// single atomic operation.
func (s *Directory) CreateUserWithGrant(ctx context.Context, u *User, roleID string, scope RoleScope) (*User, error) {
	if u == nil {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	u.Name = strings.TrimSpace(u.Name)
	roleID = strings.TrimSpace(roleID)
	if u.Name == "" || roleID == "" {
		return nil, fmt.Errorf("%w: user name and role_id are required", ErrInvalidInput)
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.UID == "" {
		u.UID = ids.UID()
	}
	now := s.now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	a := Assignment{UserID: u.ID, RoleID: roleID, Scope: scope, CreatedAt: now}
	if err := s.store.CreateUserWithGrant(ctx, u, a); err != nil {
		return nil, err
	}
	return u, nil
}

// DisableUser flips the enabled flag. Tokens bound to the user start
// failing validation immediately; history is preserved.
func (s *Directory) DisableUser(ctx context.Context, id string) error {
	return s.setUserEnabled(ctx, id, false)
}

// EnableUser re-enables a previously disabled user.
func (s *Directory) EnableUser(ctx context.Context, id string) error {
	return s.setUserEnabled(ctx, id, true)
}

func (s *Directory) setUserEnabled(ctx context.Context, id string, enabled bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.Users().SetEnabled(ctx, id, enabled)
}

// CreateTenant validates and persists a new tenant.
func (s *Directory) CreateTenant(ctx context.Context, t *Tenant) (*Tenant, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: tenant is required", ErrInvalidInput)
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return nil, fmt.Errorf("%w: tenant name is required", ErrInvalidInput)
	}
	if t.ID == "" {
		t.ID = ids.New()
	}
	if t.UID == "" {
		t.UID = ids.UID()
	}
	t.CreatedAt = s.now().UTC()
	t.UpdatedAt = t.CreatedAt
	if err := s.store.Tenants().Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// DisableTenant flips the enabled flag. Assignments scoped to the tenant
// become inert rather than deleted.
func (s *Directory) DisableTenant(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: tenant_id is required", ErrInvalidInput)
	}
	return s.store.Tenants().SetEnabled(ctx, id, false)
}

// CreateRole validates and persists a new role. The (name, service) pair
// must be unique.
func (s *Directory) CreateRole(ctx context.Context, r *Role) (*Role, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: role is required", ErrInvalidInput)
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if r.ID == "" {
		r.ID = ids.New()
	}
	r.CreatedAt = s.now().UTC()
	if err := s.store.Roles().Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Grant assigns a role to a user within a scope. Granting an already-held
// role is a no-op, not an error.
func (s *Directory) Grant(ctx context.Context, userID, roleID string, scope RoleScope) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	if _, err := s.store.Users().Get(ctx, userID); err != nil {
		return err
	}
	if _, err := s.store.Roles().Get(ctx, roleID); err != nil {
		return err
	}
	if tenantID, ok := scope.TenantID(); ok {
		if _, err := s.store.Tenants().Get(ctx, tenantID); err != nil {
			return err
		}
	}
	return s.store.Roles().Grant(ctx, Assignment{
		UserID:    userID,
		RoleID:    roleID,
		Scope:     scope,
		CreatedAt: s.now().UTC(),
	})
}

// Revoke removes a role assignment. Revoking an absent assignment is a no-op.
func (s *Directory) Revoke(ctx context.Context, userID, roleID string, scope RoleScope) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return s.store.Roles().Revoke(ctx, userID, roleID, scope)
}

// EffectiveRoles returns the union of the user's tenant-scoped and global
// role grants, deduplicated by role id. Set semantics: the result is sorted
// by role name only for stable output, no precedence is implied.
// Assignments scoped to a disabled tenant are inert and excluded.
func (s *Directory) EffectiveRoles(ctx context.Context, userID, tenantID string) ([]*Role, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if _, err := s.store.Users().Get(ctx, userID); err != nil {
		return nil, err
	}
	assignments, err := s.store.Roles().AssignmentsFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	disabledTenants := map[string]bool{}
	seen := map[string]struct{}{}
	var roles []*Role
	for _, a := range assignments {
		if scoped, ok := a.Scope.TenantID(); ok {
			if scoped != tenantID {
				continue
			}
			inert, err := s.tenantDisabled(ctx, scoped, disabledTenants)
			if err != nil {
				return nil, err
			}
			if inert {
				continue
			}
		}
		if _, ok := seen[a.RoleID]; ok {
			continue
		}
		seen[a.RoleID] = struct{}{}
		role, err := s.store.Roles().Get(ctx, a.RoleID)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (s *Directory) tenantDisabled(ctx context.Context, tenantID string, cache map[string]bool) (bool, error) {
	if v, ok := cache[tenantID]; ok {
		return v, nil
	}
	t, err := s.store.Tenants().Get(ctx, tenantID)
	if err != nil {
		return false, err
	}
	cache[tenantID] = !t.Enabled
	return !t.Enabled, nil
}
