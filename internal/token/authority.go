package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"keygate.org/internal/identity"
	"keygate.org/internal/obs"
)

var (
	// ErrInvalidToken indicates the token is unknown or revoked.
	ErrInvalidToken = errors.New("token: invalid token")
	// ErrTokenExpired indicates the token's expiry has passed.
	ErrTokenExpired = errors.New("token: expired")
	// ErrPrincipalDisabled indicates the bound user or tenant is disabled.
	ErrPrincipalDisabled = errors.New("token: principal disabled")
)

const defaultSweepInterval = 5 * time.Minute

// Authority issues, validates, and revokes bearer tokens bound to a
// (user, tenant) pair.
type Authority struct {
	store    identity.Store
	provider Provider
	now      func() time.Time
	sweep    time.Duration
}

// Option configures Authority behavior.
type Option func(*Authority)

// WithProvider overrides the default UUID token provider.
func WithProvider(p Provider) Option {
	return func(a *Authority) {
		if p != nil {
			a.provider = p
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(a *Authority) {
		if fn != nil {
			a.now = fn
		}
	}
}

// WithSweepInterval configures how often the background sweeper runs.
func WithSweepInterval(d time.Duration) Option {
	return func(a *Authority) {
		if d > 0 {
			a.sweep = d
		}
	}
}

// NewAuthority constructs an Authority over the given store.
func NewAuthority(store identity.Store, opts ...Option) (*Authority, error) {
	if store == nil {
		return nil, errors.New("token: store is required")
	}
	a := &Authority{
		store:    store,
		provider: UUIDProvider{},
		now:      time.Now,
		sweep:    defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Issue creates a token bound to the user and tenant, expiring after ttl.
// ttl of zero produces an already-expired token, which every subsequent
// Validate rejects.
func (a *Authority) Issue(ctx context.Context, userID, tenantID string, ttl time.Duration) (*identity.Token, error) {
	if ttl < 0 {
		return nil, fmt.Errorf("%w: ttl must not be negative", identity.ErrInvalidInput)
	}
	user, err := a.store.Users().Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	tenant, err := a.store.Tenants().Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !user.Enabled || !tenant.Enabled {
		return nil, ErrPrincipalDisabled
	}

	now := a.now().UTC()
	expiresAt := now.Add(ttl)
	id, err := a.provider.NewID(user.ID, tenant.ID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("generate token id: %w", err)
	}
	tok := &identity.Token{
		ID:        id,
		UserID:    user.ID,
		TenantID:  tenant.ID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := a.store.Tokens().Create(ctx, tok); err != nil {
		return nil, err
	}
	obs.TokensIssued.Inc()
	return tok, nil
}

// Validate resolves a bearer string to its (user, tenant) binding. It never
// returns a token past its expiry: expired records are evicted on the spot.
func (a *Authority) Validate(ctx context.Context, id string) (*identity.Token, error) {
	tok, err := a.store.Tokens().Get(ctx, id)
	if err != nil {
		obs.TokenValidations.WithLabelValues("invalid").Inc()
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if tok.Revoked {
		obs.TokenValidations.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidToken
	}
	if !a.now().Before(tok.ExpiresAt) {
		// Lazy eviction; the periodic sweep catches the rest.
		_ = a.store.Tokens().Delete(ctx, tok.ID)
		obs.TokenValidations.WithLabelValues("expired").Inc()
		return nil, ErrTokenExpired
	}
	user, err := a.store.Users().Get(ctx, tok.UserID)
	if err != nil {
		obs.TokenValidations.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidToken
	}
	tenant, err := a.store.Tenants().Get(ctx, tok.TenantID)
	if err != nil {
		obs.TokenValidations.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidToken
	}
	if !user.Enabled || !tenant.Enabled {
		obs.TokenValidations.WithLabelValues("disabled").Inc()
		return nil, ErrPrincipalDisabled
	}
	obs.TokenValidations.WithLabelValues("ok").Inc()
	return tok, nil
}

// Revoke marks a token unusable. Validating a revoked token fails with
// ErrInvalidToken.
func (a *Authority) Revoke(ctx context.Context, id string) error {
	return a.store.Tokens().MarkRevoked(ctx, id)
}

// Sweep removes tokens whose expiry has passed and returns the count.
func (a *Authority) Sweep(ctx context.Context) (int, error) {
	n, err := a.store.Tokens().DeleteExpiredBefore(ctx, a.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		obs.TokensSwept.Add(float64(n))
	}
	return n, nil
}

// RunSweeper periodically sweeps expired tokens until ctx is canceled.
func (a *Authority) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(a.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := a.Sweep(ctx); err != nil {
				obs.LogEvent(map[string]any{
					"ts":    time.Now().UTC().Format(time.RFC3339Nano),
					"level": "error",
					"msg":   "token sweep failed",
					"error": err.Error(),
				})
			} else if n > 0 {
				obs.LogEvent(map[string]any{
					"ts":      time.Now().UTC().Format(time.RFC3339Nano),
					"level":   "info",
					"msg":     "token sweep",
					"removed": n,
				})
			}
		}
	}
}
