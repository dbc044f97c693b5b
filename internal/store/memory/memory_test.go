package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"keygate.org/internal/identity"
)

func TestRoleNameUniquePerService(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Roles().Create(ctx, &identity.Role{ID: "r1", Name: "Admin"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Roles().Create(ctx, &identity.Role{ID: "r2", Name: "Admin"}); !errors.Is(err, identity.ErrConflict) {
		t.Fatalf("duplicate global role name: got %v, want ErrConflict", err)
	}
	// The same name under a different owning service is a distinct role.
	if err := s.Roles().Create(ctx, &identity.Role{ID: "r3", Name: "Admin", ServiceID: "svc1"}); err != nil {
		t.Fatalf("service-scoped role: %v", err)
	}
	if err := s.Roles().Create(ctx, &identity.Role{ID: "r4", Name: "Admin", ServiceID: "svc1"}); !errors.Is(err, identity.ErrConflict) {
		t.Fatalf("duplicate scoped role: got %v, want ErrConflict", err)
	}
}

func TestServiceNameUnique(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Services().Create(ctx, &identity.Service{ID: "s1", Name: "nova", Type: "compute"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Services().Create(ctx, &identity.Service{ID: "s2", Name: "nova", Type: "compute"}); !errors.Is(err, identity.ErrConflict) {
		t.Fatalf("duplicate service name: got %v, want ErrConflict", err)
	}
}

func TestEndpointUniquePerTemplateAndTenant(t *testing.T) {
	s := New()
	ctx := context.Background()

	tpl := &identity.EndpointTemplate{ID: "tpl1", ServiceID: "s1", Region: "RegionOne"}
	if err := s.Endpoints().CreateTemplate(ctx, tpl); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if err := s.Endpoints().CreateEndpoint(ctx, &identity.Endpoint{ID: "e1", TemplateID: "tpl1", TenantID: "t1"}); err != nil {
		t.Fatalf("CreateEndpoint: %v", err)
	}
	if err := s.Endpoints().CreateEndpoint(ctx, &identity.Endpoint{ID: "e2", TemplateID: "tpl1", TenantID: "t1"}); !errors.Is(err, identity.ErrConflict) {
		t.Fatalf("duplicate binding: got %v, want ErrConflict", err)
	}
	if err := s.Endpoints().CreateEndpoint(ctx, &identity.Endpoint{ID: "e3", TemplateID: "missing", TenantID: "t1"}); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("unknown template: got %v, want ErrNotFound", err)
	}
}

func TestGlobalAndScopedGrantsAreDistinct(t *testing.T) {
	s := New()
	ctx := context.Background()

	grant := func(scope identity.RoleScope) {
		t.Helper()
		err := s.Roles().Grant(ctx, identity.Assignment{UserID: "u1", RoleID: "r1", Scope: scope})
		if err != nil {
			t.Fatalf("Grant: %v", err)
		}
	}
	grant(identity.GlobalScope())
	grant(identity.TenantScope("t1"))

	got, err := s.Roles().AssignmentsFor(ctx, "u1")
	if err != nil {
		t.Fatalf("AssignmentsFor: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected two distinct assignments, got %d", len(got))
	}

	// Revoking the scoped grant leaves the global one intact.
	if err := s.Roles().Revoke(ctx, "u1", "r1", identity.TenantScope("t1")); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	got, err = s.Roles().AssignmentsFor(ctx, "u1")
	if err != nil {
		t.Fatalf("AssignmentsFor: %v", err)
	}
	if len(got) != 1 || !got[0].Scope.IsGlobal() {
		t.Fatalf("expected the global assignment to survive, got %+v", got)
	}
}

func TestTokenLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	tok := &identity.Token{ID: "tok1", UserID: "u1", TenantID: "t1", ExpiresAt: now.Add(time.Hour)}
	if err := s.Tokens().Create(ctx, tok); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Tokens().Create(ctx, tok); !errors.Is(err, identity.ErrConflict) {
		t.Fatalf("duplicate token id: got %v, want ErrConflict", err)
	}

	if err := s.Tokens().MarkRevoked(ctx, "tok1"); err != nil {
		t.Fatalf("MarkRevoked: %v", err)
	}
	got, err := s.Tokens().Get(ctx, "tok1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Revoked {
		t.Fatal("token not marked revoked")
	}

	if err := s.Tokens().Delete(ctx, "tok1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Tokens().Get(ctx, "tok1"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestDeleteExpiredBefore(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	tokens := []*identity.Token{
		{ID: "past", UserID: "u1", TenantID: "t1", ExpiresAt: now.Add(-time.Hour)},
		{ID: "boundary", UserID: "u1", TenantID: "t1", ExpiresAt: now},
		{ID: "future", UserID: "u1", TenantID: "t1", ExpiresAt: now.Add(time.Hour)},
	}
	for _, tok := range tokens {
		if err := s.Tokens().Create(ctx, tok); err != nil {
			t.Fatalf("Create %s: %v", tok.ID, err)
		}
	}

	n, err := s.Tokens().DeleteExpiredBefore(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredBefore: %v", err)
	}
	// A token expiring exactly at the cutoff is already unusable.
	if n != 2 {
		t.Fatalf("removed %d tokens, want 2", n)
	}
	if _, err := s.Tokens().Get(ctx, "future"); err != nil {
		t.Fatalf("future token should remain: %v", err)
	}
}
