package identity_test

import (
	"context"
	"errors"
	"testing"

	"keygate.org/internal/identity"
	"keygate.org/internal/store/memory"
)

func newDirectory(t *testing.T) (*identity.Directory, identity.Store) {
	t.Helper()
	store := memory.New()
	svc, err := identity.NewDirectory(store)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	return svc, store
}

func seedUserTenantRole(t *testing.T, svc *identity.Directory) (*identity.User, *identity.Tenant, *identity.Role) {
	t.Helper()
	ctx := context.Background()
	user, err := svc.CreateUser(ctx, &identity.User{Name: "admin", Enabled: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	tenant, err := svc.CreateTenant(ctx, &identity.Tenant{Name: "admin", Enabled: true})
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	role, err := svc.CreateRole(ctx, &identity.Role{Name: "admin"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	return user, tenant, role
}

func TestCreateUserUniqueness(t *testing.T) {
	svc, _ := newDirectory(t)
	ctx := context.Background()

	first, err := svc.CreateUser(ctx, &identity.User{Name: "admin", Enabled: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if first.UID == "" || first.ID == "" {
		t.Fatalf("expected generated identifiers, got %+v", first)
	}

	if _, err := svc.CreateUser(ctx, &identity.User{Name: "admin", Enabled: true}); !errors.Is(err, identity.ErrConflict) {
		t.Fatalf("duplicate name: got %v, want ErrConflict", err)
	}
	if _, err := svc.CreateUser(ctx, &identity.User{Name: "other", UID: first.UID, Enabled: true}); !errors.Is(err, identity.ErrConflict) {
		t.Fatalf("duplicate uid: got %v, want ErrConflict", err)
	}
}

func TestGrantIsIdempotent(t *testing.T) {
	svc, store := newDirectory(t)
	ctx := context.Background()
	user, tenant, role := seedUserTenantRole(t, svc)

	scope := identity.TenantScope(tenant.ID)
	if err := svc.Grant(ctx, user.ID, role.ID, scope); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := svc.Grant(ctx, user.ID, role.ID, scope); err != nil {
		t.Fatalf("second Grant: %v", err)
	}

	assignments, err := store.Roles().AssignmentsFor(ctx, user.ID)
	if err != nil {
		t.Fatalf("AssignmentsFor: %v", err)
	}
	if len(assignments) != 1 {
		t.Fatalf("expected exactly one assignment, got %d", len(assignments))
	}
}

func TestEffectiveRolesAdminScenario(t *testing.T) {
	svc, _ := newDirectory(t)
	ctx := context.Background()
	user, tenant, role := seedUserTenantRole(t, svc)

	if err := svc.Grant(ctx, user.ID, role.ID, identity.TenantScope(tenant.ID)); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	roles, err := svc.EffectiveRoles(ctx, user.ID, tenant.ID)
	if err != nil {
		t.Fatalf("EffectiveRoles: %v", err)
	}
	if len(roles) != 1 || roles[0].Name != "admin" {
		t.Fatalf("expected {admin}, got %+v", roles)
	}
}

func TestEffectiveRolesOrderIndependent(t *testing.T) {
	ctx := context.Background()

	build := func(reversed bool) []string {
		svc, _ := newDirectory(t)
		user, tenant, _ := seedUserTenantRole(t, svc)
		global, err := svc.CreateRole(ctx, &identity.Role{Name: "auditor"})
		if err != nil {
			t.Fatalf("CreateRole: %v", err)
		}
		scoped, err := svc.CreateRole(ctx, &identity.Role{Name: "operator"})
		if err != nil {
			t.Fatalf("CreateRole: %v", err)
		}
		grants := []struct {
			roleID string
			scope  identity.RoleScope
		}{
			{global.ID, identity.GlobalScope()},
			{scoped.ID, identity.TenantScope(tenant.ID)},
		}
		if reversed {
			grants[0], grants[1] = grants[1], grants[0]
		}
		for _, g := range grants {
			if err := svc.Grant(ctx, user.ID, g.roleID, g.scope); err != nil {
				t.Fatalf("Grant: %v", err)
			}
		}
		roles, err := svc.EffectiveRoles(ctx, user.ID, tenant.ID)
		if err != nil {
			t.Fatalf("EffectiveRoles: %v", err)
		}
		names := make([]string, len(roles))
		for i, r := range roles {
			names[i] = r.Name
		}
		return names
	}

	forward := build(false)
	backward := build(true)
	if len(forward) != 2 || len(backward) != 2 {
		t.Fatalf("expected two roles, got %v and %v", forward, backward)
	}
	for i := range forward {
		if forward[i] != backward[i] {
			t.Fatalf("insertion order changed result: %v vs %v", forward, backward)
		}
	}
}

func TestEffectiveRolesExcludesOtherTenants(t *testing.T) {
	svc, _ := newDirectory(t)
	ctx := context.Background()
	user, tenant, role := seedUserTenantRole(t, svc)
	other, err := svc.CreateTenant(ctx, &identity.Tenant{Name: "demo", Enabled: true})
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}

	if err := svc.Grant(ctx, user.ID, role.ID, identity.TenantScope(other.ID)); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	roles, err := svc.EffectiveRoles(ctx, user.ID, tenant.ID)
	if err != nil {
		t.Fatalf("EffectiveRoles: %v", err)
	}
	if len(roles) != 0 {
		t.Fatalf("expected no roles in %s, got %+v", tenant.ID, roles)
	}
}

func TestDisabledTenantAssignmentsAreInert(t *testing.T) {
	svc, store := newDirectory(t)
	ctx := context.Background()
	user, tenant, role := seedUserTenantRole(t, svc)

	if err := svc.Grant(ctx, user.ID, role.ID, identity.TenantScope(tenant.ID)); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := svc.DisableTenant(ctx, tenant.ID); err != nil {
		t.Fatalf("DisableTenant: %v", err)
	}

	roles, err := svc.EffectiveRoles(ctx, user.ID, tenant.ID)
	if err != nil {
		t.Fatalf("EffectiveRoles: %v", err)
	}
	if len(roles) != 0 {
		t.Fatalf("expected inert assignments, got %+v", roles)
	}

	// Assignments survive the disable; nothing was deleted.
	assignments, err := store.Roles().AssignmentsFor(ctx, user.ID)
	if err != nil {
		t.Fatalf("AssignmentsFor: %v", err)
	}
	if len(assignments) != 1 {
		t.Fatalf("expected assignment preserved, got %d", len(assignments))
	}
}

func TestEffectiveRolesUnknownUser(t *testing.T) {
	svc, _ := newDirectory(t)
	if _, err := svc.EffectiveRoles(context.Background(), "missing", ""); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestCreateUserWithGrantIsAtomic(t *testing.T) {
	svc, store := newDirectory(t)
	ctx := context.Background()

	_, err := svc.CreateUserWithGrant(ctx, &identity.User{Name: "bob", Enabled: true}, "no-such-role", identity.GlobalScope())
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if _, err := store.Users().GetByName(ctx, "bob"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("user must not exist after failed compound create, got %v", err)
	}
}

func TestRevokeAbsentAssignmentIsNoop(t *testing.T) {
	svc, _ := newDirectory(t)
	ctx := context.Background()
	user, tenant, role := seedUserTenantRole(t, svc)

	if err := svc.Revoke(ctx, user.ID, role.ID, identity.TenantScope(tenant.ID)); err != nil {
		t.Fatalf("Revoke of absent assignment: %v", err)
	}
}
