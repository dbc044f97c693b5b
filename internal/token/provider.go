package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"keygate.org/internal/ids"
)

// Provider generates the opaque bearer string for a new token. The legacy
// data carried predictable numeric ids; both providers here derive ids from
// a CSPRNG.
type Provider interface {
	NewID(userID, tenantID string, expiresAt time.Time) (string, error)
}

// UUIDProvider issues random 32-hex-digit identifiers. This is the default.
type UUIDProvider struct{}

// NewID returns a fresh random identifier.
func (UUIDProvider) NewID(_, _ string, _ time.Time) (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(u.String(), "-", ""), nil
}

// JWTProvider issues HS256-signed tokens that carry their binding in the
// claims. The token is still persisted and validated against the store, so
// revocation and principal checks behave exactly like opaque tokens.
type JWTProvider struct {
	secret []byte
	issuer string
}

// NewJWTProvider constructs a JWTProvider with the signing secret.
func NewJWTProvider(secret, issuer string) (*JWTProvider, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("token: signing secret is required")
	}
	return &JWTProvider{secret: []byte(secret), issuer: issuer}, nil
}

// NewID signs a JWT embedding the user/tenant binding and expiry.
func (p *JWTProvider) NewID(userID, tenantID string, expiresAt time.Time) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    p.issuer,
		Subject:   userID,
		Audience:  jwt.ClaimStrings{tenantID},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        ids.UID(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
