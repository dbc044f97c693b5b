package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"keygate.org/internal/catalog"
	"keygate.org/internal/credential"
	"keygate.org/internal/identity"
	"keygate.org/internal/store/memory"
	"keygate.org/internal/token"
)

type apiFixture struct {
	api     *API
	handler http.Handler
	store   identity.Store
	admin   *identity.User
	member  *identity.User
	tenant  *identity.Tenant
	other   *identity.Tenant
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	dir, err := identity.NewDirectory(store)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	tenant, err := dir.CreateTenant(ctx, &identity.Tenant{Name: "admin", Enabled: true})
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	other, err := dir.CreateTenant(ctx, &identity.Tenant{Name: "demo", Enabled: true})
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	adminRole, err := dir.CreateRole(ctx, &identity.Role{Name: RoleAdmin})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	memberRole, err := dir.CreateRole(ctx, &identity.Role{Name: "Member"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	admin, err := dir.CreateUser(ctx, &identity.User{Name: "admin", Enabled: true, DefaultTenantID: tenant.ID})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	member, err := dir.CreateUser(ctx, &identity.User{Name: "demo", Enabled: true, DefaultTenantID: other.ID})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := dir.Grant(ctx, admin.ID, adminRole.ID, identity.GlobalScope()); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := dir.Grant(ctx, member.ID, memberRole.ID, identity.TenantScope(other.ID)); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	verifier := credential.NewVerifier(store, 1000)
	if err := verifier.SetPassword(ctx, admin.ID, "secrete"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if err := verifier.SetPassword(ctx, member.ID, "secrete"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	authority, err := token.NewAuthority(store)
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}

	api := New(ReadyProbe{}, "test", dir, verifier, authority, catalog.NewResolver(store))
	return &apiFixture{
		api:     api,
		handler: api.Handler(),
		store:   store,
		admin:   admin,
		member:  member,
		tenant:  tenant,
		other:   other,
	}
}

func (f *apiFixture) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) issueToken(t *testing.T, name, password string) tokenResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/tokens", "", map[string]any{
		"name":     name,
		"password": password,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("issue token: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	return resp
}

func TestIssueTokenReturnsRoles(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.issueToken(t, "admin", "secrete")

	if resp.ID == "" {
		t.Fatal("expected a bearer id")
	}
	if resp.TenantID != f.tenant.ID {
		t.Fatalf("TenantID = %s, want default tenant %s", resp.TenantID, f.tenant.ID)
	}
	if len(resp.Roles) != 1 || resp.Roles[0] != RoleAdmin {
		t.Fatalf("Roles = %v, want [%s]", resp.Roles, RoleAdmin)
	}
}

func TestIssueTokenRejectsBadCredentials(t *testing.T) {
	f := newAPIFixture(t)

	for name, body := range map[string]map[string]any{
		"wrong password": {"name": "admin", "password": "nope"},
		"unknown user":   {"name": "ghost", "password": "secrete"},
	} {
		rec := f.do(t, http.MethodPost, "/v1/tokens", "", body)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status %d, want 401", name, rec.Code)
		}
		// Both failure causes produce the identical response.
		var resp map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: decode: %v", name, err)
		}
		if resp["error"] != "authentication failed" {
			t.Errorf("%s: error = %v", name, resp["error"])
		}
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/users", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz without auth: status %d, want 200", rec.Code)
	}
}

func TestAdminCanCreateTenantMemberCannot(t *testing.T) {
	f := newAPIFixture(t)
	adminTok := f.issueToken(t, "admin", "secrete")
	memberTok := f.issueToken(t, "demo", "secrete")

	body := map[string]any{"name": "staging"}
	rec := f.do(t, http.MethodPost, "/v1/tenants", memberTok.ID, body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member create tenant: status %d, want 403", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/v1/tenants", adminTok.ID, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create tenant: status %d, body %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodPost, "/v1/tenants", adminTok.ID, body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate tenant: status %d, want 409", rec.Code)
	}
}

func TestTokenValidateAndRevoke(t *testing.T) {
	f := newAPIFixture(t)
	adminTok := f.issueToken(t, "admin", "secrete")
	memberTok := f.issueToken(t, "demo", "secrete")

	rec := f.do(t, http.MethodGet, "/v1/tokens/"+memberTok.ID, adminTok.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodDelete, "/v1/tokens/"+memberTok.ID, memberTok.ID, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member revoke: status %d, want 403", rec.Code)
	}
	rec = f.do(t, http.MethodDelete, "/v1/tokens/"+memberTok.ID, adminTok.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin revoke: status %d, body %s", rec.Code, rec.Body.String())
	}

	// A revoked token no longer authenticates.
	rec = f.do(t, http.MethodGet, "/v1/users", memberTok.ID, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token: status %d, want 401", rec.Code)
	}
}

func TestDisabledUserLosesAccess(t *testing.T) {
	f := newAPIFixture(t)
	adminTok := f.issueToken(t, "admin", "secrete")

	rec := f.do(t, http.MethodPut, "/v1/users/"+f.admin.ID+"/enabled", adminTok.ID, map[string]any{"enabled": false})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("disable: status %d, body %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodGet, "/v1/users", adminTok.ID, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("disabled principal: status %d, want 403", rec.Code)
	}
}

func TestTenantCatalogAccess(t *testing.T) {
	f := newAPIFixture(t)
	memberTok := f.issueToken(t, "demo", "secrete")

	// Own tenant: allowed for any authenticated principal.
	rec := f.do(t, http.MethodGet, fmt.Sprintf("/v1/tenants/%s/catalog", f.other.ID), memberTok.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("own catalog: status %d, body %s", rec.Code, rec.Body.String())
	}
	// Someone else's tenant needs Admin.
	rec = f.do(t, http.MethodGet, fmt.Sprintf("/v1/tenants/%s/catalog", f.tenant.ID), memberTok.ID, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign catalog: status %d, want 403", rec.Code)
	}
}

func TestGrantAndRevokeOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	adminTok := f.issueToken(t, "admin", "secrete")

	var roles []identity.Role
	rec := f.do(t, http.MethodGet, "/v1/roles", adminTok.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list roles: status %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &roles); err != nil {
		t.Fatalf("decode roles: %v", err)
	}
	var memberRoleID string
	for _, role := range roles {
		if role.Name == "Member" {
			memberRoleID = role.ID
		}
	}
	if memberRoleID == "" {
		t.Fatal("Member role missing from listing")
	}

	grantPath := fmt.Sprintf("/v1/users/%s/roles/%s?tenant_id=%s", f.admin.ID, memberRoleID, f.tenant.ID)
	rec = f.do(t, http.MethodPut, grantPath, adminTok.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("grant: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/v1/users/%s/roles?tenant_id=%s", f.admin.ID, f.tenant.ID), adminTok.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list user roles: status %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &roles); err != nil {
		t.Fatalf("decode roles: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("expected Admin and Member, got %v", roles)
	}

	rec = f.do(t, http.MethodDelete, grantPath, adminTok.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("revoke: status %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestCreateUserWithInitialGrant(t *testing.T) {
	f := newAPIFixture(t)
	adminTok := f.issueToken(t, "admin", "secrete")

	rec := f.do(t, http.MethodGet, "/v1/roles", adminTok.ID, nil)
	var roles []identity.Role
	if err := json.Unmarshal(rec.Body.Bytes(), &roles); err != nil {
		t.Fatalf("decode roles: %v", err)
	}
	var adminRoleID string
	for _, role := range roles {
		if role.Name == RoleAdmin {
			adminRoleID = role.ID
		}
	}

	rec = f.do(t, http.MethodPost, "/v1/users", adminTok.ID, map[string]any{
		"name":              "operator",
		"password":          "secrete",
		"default_tenant_id": f.tenant.ID,
		"role_id":           adminRoleID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user: status %d, body %s", rec.Code, rec.Body.String())
	}

	// The new user can immediately authenticate and act as Admin.
	opTok := f.issueToken(t, "operator", "secrete")
	rec = f.do(t, http.MethodGet, "/v1/users", opTok.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("new admin list users: status %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]struct {
		header  string
		want    string
		wantErr bool
	}{
		"plain":        {header: "Bearer abc123", want: "abc123"},
		"lower case":   {header: "bearer abc123", want: "abc123"},
		"empty":        {header: "", wantErr: true},
		"wrong scheme": {header: "Basic abc123", wantErr: true},
		"no token":     {header: "Bearer ", wantErr: true},
	}
	for name, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%s: expected error, got %q", name, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %q, want %q", name, got, tc.want)
		}
	}
}
