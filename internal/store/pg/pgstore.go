// Package pg implements identity.Store on PostgreSQL through database/sql
// with the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"keygate.org/internal/identity"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store wraps a SQL connection pool.
type Store struct {
	db *sql.DB
}

var _ identity.Store = (*Store)(nil)

// Open connects to PostgreSQL and tunes the pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection (used by tests with sqlmock).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users() identity.UserStore             { return &userStore{db: s.db} }
func (s *Store) Tenants() identity.TenantStore         { return &tenantStore{db: s.db} }
func (s *Store) Roles() identity.RoleStore             { return &roleStore{db: s.db} }
func (s *Store) Services() identity.ServiceStore       { return &serviceStore{db: s.db} }
func (s *Store) Endpoints() identity.EndpointStore     { return &endpointStore{db: s.db} }
func (s *Store) Credentials() identity.CredentialStore { return &credentialStore{db: s.db} }
func (s *Store) Tokens() identity.TokenStore           { return &tokenStore{db: s.db} }

// CreateUserWithGrant inserts the user and the initial assignment in one
// transaction: either both land or neither does.
func (s *Store) CreateUserWithGrant(ctx context.Context, u *identity.User, a identity.Assignment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into users(id, name, uid, email, enabled, default_tenant_id, password_hash, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, u.ID, u.Name, u.UID, nullString(u.Email), u.Enabled, nullString(u.DefaultTenantID),
		nullString(u.PasswordHash), u.CreatedAt, u.UpdatedAt); err != nil {
		return mapWriteError(err)
	}
	if _, err := tx.ExecContext(ctx, `
		insert into user_roles(user_id, role_id, tenant_id, created_at)
		values ($1,$2,$3,$4)
		on conflict do nothing
	`, a.UserID, a.RoleID, scopeValue(a.Scope), a.CreatedAt); err != nil {
		return mapWriteError(err)
	}
	return tx.Commit()
}

func mapWriteError(err error) error {
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return identity.ErrConflict
		case pgErrForeignKeyViolation:
			return identity.ErrNotFound
		}
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func fromNull(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

// scopeValue maps a RoleScope to the nullable tenant_id column. NULL keeps
// the legacy on-disk convention for global grants.
func scopeValue(scope identity.RoleScope) sql.NullString {
	if tid, ok := scope.TenantID(); ok {
		return sql.NullString{String: tid, Valid: true}
	}
	return sql.NullString{}
}

func scopeFrom(ns sql.NullString) identity.RoleScope {
	if ns.Valid {
		return identity.TenantScope(ns.String)
	}
	return identity.GlobalScope()
}
