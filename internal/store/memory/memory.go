// Package memory provides a mutex-guarded in-memory identity.Store used by
// tests and single-process development setups.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"keygate.org/internal/identity"
)

// Store keeps every entity in maps guarded by a single RWMutex. Uniqueness
// invariants are enforced at write time, mirroring the SQL constraints.
type Store struct {
	mu sync.RWMutex

	users       map[string]identity.User
	tenants     map[string]identity.Tenant
	roles       map[string]identity.Role
	services    map[string]identity.Service
	templates   map[string]identity.EndpointTemplate
	endpoints   map[string]identity.Endpoint
	credentials map[string]identity.Credential
	tokens      map[string]identity.Token
	assignments map[assignmentKey]identity.Assignment
}

type assignmentKey struct {
	userID   string
	roleID   string
	tenantID string
}

func keyFor(a identity.Assignment) assignmentKey {
	k := assignmentKey{userID: a.UserID, roleID: a.RoleID}
	if tid, ok := a.Scope.TenantID(); ok {
		k.tenantID = tid
	}
	return k
}

var _ identity.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:       map[string]identity.User{},
		tenants:     map[string]identity.Tenant{},
		roles:       map[string]identity.Role{},
		services:    map[string]identity.Service{},
		templates:   map[string]identity.EndpointTemplate{},
		endpoints:   map[string]identity.Endpoint{},
		credentials: map[string]identity.Credential{},
		tokens:      map[string]identity.Token{},
		assignments: map[assignmentKey]identity.Assignment{},
	}
}

func (s *Store) Users() identity.UserStore             { return (*userStore)(s) }
func (s *Store) Tenants() identity.TenantStore         { return (*tenantStore)(s) }
func (s *Store) Roles() identity.RoleStore             { return (*roleStore)(s) }
func (s *Store) Services() identity.ServiceStore       { return (*serviceStore)(s) }
func (s *Store) Endpoints() identity.EndpointStore     { return (*endpointStore)(s) }
func (s *Store) Credentials() identity.CredentialStore { return (*credentialStore)(s) }
func (s *Store) Tokens() identity.TokenStore           { return (*tokenStore)(s) }

// CreateUserWithGrant applies both writes under one critical section so the
// compound operation is atomic.
func (s *Store) CreateUserWithGrant(ctx context.Context, u *identity.User, a identity.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[a.RoleID]; !ok {
		return fmt.Errorf("%w: role %s", identity.ErrNotFound, a.RoleID)
	}
	if tid, ok := a.Scope.TenantID(); ok {
		if _, exists := s.tenants[tid]; !exists {
			return fmt.Errorf("%w: tenant %s", identity.ErrNotFound, tid)
		}
	}
	if err := s.insertUserLocked(u); err != nil {
		return err
	}
	s.assignments[keyFor(a)] = a
	return nil
}

func (s *Store) insertUserLocked(u *identity.User) error {
	if _, ok := s.users[u.ID]; ok {
		return identity.ErrConflict
	}
	for _, existing := range s.users {
		if existing.Name == u.Name || existing.UID == u.UID {
			return identity.ErrConflict
		}
	}
	s.users[u.ID] = *u
	return nil
}

// userStore -----------------------------------------------------------------

type userStore Store

func (s *userStore) Create(ctx context.Context, u *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*Store)(s).insertUserLocked(u)
}

func (s *userStore) Get(ctx context.Context, id string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &u, nil
}

func (s *userStore) GetByName(ctx context.Context, name string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Name == name {
			out := u
			return &out, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (s *userStore) List(ctx context.Context) ([]*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*identity.User, 0, len(s.users))
	for _, u := range s.users {
		c := u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *userStore) Update(ctx context.Context, u *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.ID]
	if !ok {
		return identity.ErrNotFound
	}
	for id, other := range s.users {
		if id == u.ID {
			continue
		}
		if other.Name == u.Name || other.UID == u.UID {
			return identity.ErrConflict
		}
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = *u
	return nil
}

func (s *userStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return identity.ErrNotFound
	}
	u.Enabled = enabled
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

func (s *userStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return identity.ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

// tenantStore ---------------------------------------------------------------

type tenantStore Store

func (s *tenantStore) Create(ctx context.Context, t *identity.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; ok {
		return identity.ErrConflict
	}
	for _, existing := range s.tenants {
		if existing.Name == t.Name || existing.UID == t.UID {
			return identity.ErrConflict
		}
	}
	s.tenants[t.ID] = *t
	return nil
}

func (s *tenantStore) Get(ctx context.Context, id string) (*identity.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &t, nil
}

func (s *tenantStore) GetByName(ctx context.Context, name string) (*identity.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if t.Name == name {
			out := t
			return &out, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (s *tenantStore) List(ctx context.Context) ([]*identity.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*identity.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		c := t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *tenantStore) Update(ctx context.Context, t *identity.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tenants[t.ID]
	if !ok {
		return identity.ErrNotFound
	}
	for id, other := range s.tenants {
		if id == t.ID {
			continue
		}
		if other.Name == t.Name || other.UID == t.UID {
			return identity.ErrConflict
		}
	}
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	s.tenants[t.ID] = *t
	return nil
}

func (s *tenantStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return identity.ErrNotFound
	}
	t.Enabled = enabled
	t.UpdatedAt = time.Now().UTC()
	s.tenants[id] = t
	return nil
}

// roleStore -----------------------------------------------------------------

type roleStore Store

func (s *roleStore) Create(ctx context.Context, r *identity.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[r.ID]; ok {
		return identity.ErrConflict
	}
	for _, existing := range s.roles {
		if existing.Name == r.Name && existing.ServiceID == r.ServiceID {
			return identity.ErrConflict
		}
	}
	s.roles[r.ID] = *r
	return nil
}

func (s *roleStore) Get(ctx context.Context, id string) (*identity.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &r, nil
}

func (s *roleStore) List(ctx context.Context) ([]*identity.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*identity.Role, 0, len(s.roles))
	for _, r := range s.roles {
		c := r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *roleStore) Grant(ctx context.Context, a identity.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Granting an already-held role is a no-op.
	s.assignments[keyFor(a)] = a
	return nil
}

func (s *roleStore) Revoke(ctx context.Context, userID, roleID string, scope identity.RoleScope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assignments, keyFor(identity.Assignment{UserID: userID, RoleID: roleID, Scope: scope}))
	return nil
}

func (s *roleStore) AssignmentsFor(ctx context.Context, userID string) ([]identity.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []identity.Assignment
	for _, a := range s.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

// serviceStore --------------------------------------------------------------

type serviceStore Store

func (s *serviceStore) Create(ctx context.Context, svc *identity.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[svc.ID]; ok {
		return identity.ErrConflict
	}
	for _, existing := range s.services {
		if existing.Name == svc.Name {
			return identity.ErrConflict
		}
	}
	s.services[svc.ID] = *svc
	return nil
}

func (s *serviceStore) Get(ctx context.Context, id string) (*identity.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &svc, nil
}

func (s *serviceStore) GetByName(ctx context.Context, name string) (*identity.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, svc := range s.services {
		if svc.Name == name {
			out := svc
			return &out, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (s *serviceStore) List(ctx context.Context) ([]*identity.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*identity.Service, 0, len(s.services))
	for _, svc := range s.services {
		c := svc
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// endpointStore -------------------------------------------------------------

type endpointStore Store

func (s *endpointStore) CreateTemplate(ctx context.Context, t *identity.EndpointTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[t.ID]; ok {
		return identity.ErrConflict
	}
	s.templates[t.ID] = *t
	return nil
}

func (s *endpointStore) GetTemplate(ctx context.Context, id string) (*identity.EndpointTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &t, nil
}

func (s *endpointStore) ListTemplates(ctx context.Context) ([]*identity.EndpointTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*identity.EndpointTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		c := t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *endpointStore) SetTemplateEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return identity.ErrNotFound
	}
	t.Enabled = enabled
	s.templates[id] = t
	return nil
}

func (s *endpointStore) CreateEndpoint(ctx context.Context, e *identity.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[e.TemplateID]; !ok {
		return fmt.Errorf("%w: template %s", identity.ErrNotFound, e.TemplateID)
	}
	for _, existing := range s.endpoints {
		if existing.TemplateID == e.TemplateID && existing.TenantID == e.TenantID {
			return identity.ErrConflict
		}
	}
	s.endpoints[e.ID] = *e
	return nil
}

func (s *endpointStore) ListEndpointsByTenant(ctx context.Context, tenantID string) ([]*identity.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*identity.Endpoint
	for _, e := range s.endpoints {
		if e.TenantID == tenantID {
			c := e
			out = append(out, &c)
		}
	}
	return out, nil
}

// credentialStore -----------------------------------------------------------

type credentialStore Store

func (s *credentialStore) Create(ctx context.Context, c *identity.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[c.ID]; ok {
		return identity.ErrConflict
	}
	s.credentials[c.ID] = *c
	return nil
}

func (s *credentialStore) Get(ctx context.Context, id string) (*identity.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &c, nil
}

func (s *credentialStore) ListByUser(ctx context.Context, userID string) ([]*identity.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*identity.Credential
	for _, c := range s.credentials {
		if c.UserID == userID {
			cp := c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *credentialStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[id]; !ok {
		return identity.ErrNotFound
	}
	delete(s.credentials, id)
	return nil
}

// tokenStore ----------------------------------------------------------------

type tokenStore Store

func (s *tokenStore) Create(ctx context.Context, t *identity.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[t.ID]; ok {
		return identity.ErrConflict
	}
	s.tokens[t.ID] = *t
	return nil
}

func (s *tokenStore) Get(ctx context.Context, id string) (*identity.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &t, nil
}

func (s *tokenStore) MarkRevoked(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return identity.ErrNotFound
	}
	t.Revoked = true
	s.tokens[id] = t
	return nil
}

func (s *tokenStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[id]; !ok {
		return identity.ErrNotFound
	}
	delete(s.tokens, id)
	return nil
}

func (s *tokenStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, t := range s.tokens {
		if !t.ExpiresAt.After(cutoff) {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}
