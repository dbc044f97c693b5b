package credential_test

import (
	"context"
	"testing"

	"keygate.org/internal/credential"
	"keygate.org/internal/identity"
	"keygate.org/internal/ids"
	"keygate.org/internal/store/memory"
)

func seedVerifier(t *testing.T) (*credential.Verifier, identity.Store, *identity.User) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	dir, err := identity.NewDirectory(store)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	user, err := dir.CreateUser(ctx, &identity.User{Name: "admin", Enabled: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	v := credential.NewVerifier(store, 1000)
	if err := v.SetPassword(ctx, user.ID, "secrete"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	return v, store, user
}

func TestVerifyPasswordCredential(t *testing.T) {
	v, _, user := seedVerifier(t)
	ctx := context.Background()

	if !v.Verify(ctx, user.ID, "secrete", identity.CredentialPassword) {
		t.Fatal("correct password rejected")
	}
	if v.Verify(ctx, user.ID, "wrong", identity.CredentialPassword) {
		t.Fatal("wrong password accepted")
	}
	// Empty type defaults to password.
	if !v.Verify(ctx, user.ID, "secrete", "") {
		t.Fatal("default credential type should be password")
	}
}

func TestVerifyFailsClosed(t *testing.T) {
	v, store, user := seedVerifier(t)
	ctx := context.Background()

	if v.Verify(ctx, "no-such-user", "secrete", identity.CredentialPassword) {
		t.Fatal("unknown user must not verify")
	}
	if v.Verify(ctx, user.ID, "", identity.CredentialPassword) {
		t.Fatal("empty secret must not verify")
	}

	if err := store.Users().SetEnabled(ctx, user.ID, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if v.Verify(ctx, user.ID, "secrete", identity.CredentialPassword) {
		t.Fatal("disabled user must not verify")
	}
}

func TestVerifyStoredCredential(t *testing.T) {
	v, store, user := seedVerifier(t)
	ctx := context.Background()

	cred := &identity.Credential{
		ID:     ids.New(),
		UserID: user.ID,
		Type:   identity.CredentialEC2,
		Key:    "access-key",
		Secret: "ec2-secret",
	}
	if err := store.Credentials().Create(ctx, cred); err != nil {
		t.Fatalf("Create credential: %v", err)
	}

	if !v.Verify(ctx, user.ID, "ec2-secret", identity.CredentialEC2) {
		t.Fatal("matching ec2 secret rejected")
	}
	if v.Verify(ctx, user.ID, "wrong", identity.CredentialEC2) {
		t.Fatal("wrong ec2 secret accepted")
	}
	// The password does not satisfy an ec2 check and vice versa.
	if v.Verify(ctx, user.ID, "secrete", identity.CredentialEC2) {
		t.Fatal("password accepted as ec2 credential")
	}
	if v.Verify(ctx, user.ID, "ec2-secret", identity.CredentialPassword) {
		t.Fatal("ec2 secret accepted as password")
	}
}
