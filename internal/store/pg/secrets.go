package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"keygate.org/internal/identity"
)

// credentialStore -----------------------------------------------------------

type credentialStore struct{ db *sql.DB }

func (s *credentialStore) Create(ctx context.Context, c *identity.Credential) error {
	_, err := s.db.ExecContext(ctx, `
		insert into credentials(id, user_id, tenant_id, type, key, secret, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, c.ID, c.UserID, nullString(c.TenantID), c.Type, c.Key, c.Secret, c.CreatedAt)
	return mapWriteError(err)
}

func (s *credentialStore) Get(ctx context.Context, id string) (*identity.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, tenant_id, type, key, secret, created_at from credentials where id=$1`, id)
	return scanCredential(row)
}

func (s *credentialStore) ListByUser(ctx context.Context, userID string) ([]*identity.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, user_id, tenant_id, type, key, secret, created_at from credentials where user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*identity.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func (s *credentialStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from credentials where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanCredential(row interface{ Scan(...any) error }) (*identity.Credential, error) {
	var (
		c   identity.Credential
		tid sql.NullString
	)
	if err := row.Scan(&c.ID, &c.UserID, &tid, &c.Type, &c.Key, &c.Secret, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}
	c.TenantID = fromNull(tid)
	return &c, nil
}

// tokenStore ----------------------------------------------------------------

type tokenStore struct{ db *sql.DB }

func (s *tokenStore) Create(ctx context.Context, t *identity.Token) error {
	_, err := s.db.ExecContext(ctx, `
		insert into tokens(id, user_id, tenant_id, expires_at, revoked, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, t.ID, t.UserID, t.TenantID, t.ExpiresAt, t.Revoked, t.CreatedAt)
	return mapWriteError(err)
}

func (s *tokenStore) Get(ctx context.Context, id string) (*identity.Token, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, tenant_id, expires_at, revoked, created_at from tokens where id=$1`, id)
	var t identity.Token
	if err := row.Scan(&t.ID, &t.UserID, &t.TenantID, &t.ExpiresAt, &t.Revoked, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *tokenStore) MarkRevoked(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `update tokens set revoked=true where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *tokenStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from tokens where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *tokenStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `delete from tokens where expires_at <= $1`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
