package credential

import (
	"context"
	"crypto/subtle"
	"strings"

	"keygate.org/internal/identity"
)

// Verifier checks presented secrets against stored credential material.
// Every failure path yields "no match": callers learn a boolean, never
// whether the user exists, holds a credential, or is disabled.
type Verifier struct {
	store  identity.Store
	rounds int
}

// NewVerifier constructs a Verifier. rounds configures the KDF work factor
// used when hashing new passwords via SetPassword.
func NewVerifier(store identity.Store, rounds int) *Verifier {
	if rounds <= 0 {
		rounds = DefaultRounds
	}
	return &Verifier{store: store, rounds: rounds}
}

// SetPassword hashes and stores a new password for the user.
func (v *Verifier) SetPassword(ctx context.Context, userID, password string) error {
	hash, err := HashPassword(password, v.rounds)
	if err != nil {
		return err
	}
	return v.store.Users().SetPasswordHash(ctx, userID, hash)
}

// Verify reports whether the presented secret matches the user's stored
// credential of the given type. It fails closed: a missing user, missing
// credential, or disabled user all report false without error detail.
func (v *Verifier) Verify(ctx context.Context, userID, secret, credType string) bool {
	userID = strings.TrimSpace(userID)
	if userID == "" || secret == "" {
		return false
	}
	user, err := v.store.Users().Get(ctx, userID)
	if err != nil || !user.Enabled {
		return false
	}
	switch credType {
	case identity.CredentialPassword, "":
		return VerifyPassword(user.PasswordHash, secret)
	default:
		return v.verifyStored(ctx, userID, secret, credType)
	}
}

func (v *Verifier) verifyStored(ctx context.Context, userID, secret, credType string) bool {
	creds, err := v.store.Credentials().ListByUser(ctx, userID)
	if err != nil {
		return false
	}
	matched := false
	for _, c := range creds {
		if c.Type != credType {
			continue
		}
		// Compare every candidate; no early exit on match so the work done
		// does not depend on which credential row matched.
		if subtle.ConstantTimeCompare([]byte(c.Secret), []byte(secret)) == 1 {
			matched = true
		}
	}
	return matched
}
