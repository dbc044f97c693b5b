package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"keygate.org/internal/identity"
)

// userStore -----------------------------------------------------------------

type userStore struct{ db *sql.DB }

const userColumns = `id, name, uid, email, enabled, default_tenant_id, password_hash, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*identity.User, error) {
	var (
		u                         identity.User
		email, defTenant, pwdHash sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Name, &u.UID, &email, &u.Enabled, &defTenant, &pwdHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}
	u.Email = fromNull(email)
	u.DefaultTenantID = fromNull(defTenant)
	u.PasswordHash = fromNull(pwdHash)
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *identity.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(`+userColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, u.ID, u.Name, u.UID, nullString(u.Email), u.Enabled, nullString(u.DefaultTenantID),
		nullString(u.PasswordHash), u.CreatedAt, u.UpdatedAt)
	return mapWriteError(err)
}

func (s *userStore) Get(ctx context.Context, id string) (*identity.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) GetByName(ctx context.Context, name string) (*identity.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where name=$1`, name)
	return scanUser(row)
}

func (s *userStore) List(ctx context.Context) ([]*identity.User, error) {
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*identity.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *userStore) Update(ctx context.Context, u *identity.User) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set name=$2, email=$3, default_tenant_id=$4, updated_at=$5
		where id=$1
	`, u.ID, u.Name, nullString(u.Email), nullString(u.DefaultTenantID), time.Now().UTC())
	if err != nil {
		return mapWriteError(err)
	}
	return requireRow(res)
}

func (s *userStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`update users set enabled=$2, updated_at=$3 where id=$1`, id, enabled, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=$3 where id=$1`, id, hash, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

// tenantStore ---------------------------------------------------------------

type tenantStore struct{ db *sql.DB }

const tenantColumns = `id, name, uid, description, enabled, created_at, updated_at`

func scanTenant(row interface{ Scan(...any) error }) (*identity.Tenant, error) {
	var (
		t    identity.Tenant
		desc sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Name, &t.UID, &desc, &t.Enabled, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}
	t.Description = fromNull(desc)
	return &t, nil
}

func (s *tenantStore) Create(ctx context.Context, t *identity.Tenant) error {
	_, err := s.db.ExecContext(ctx, `
		insert into tenants(`+tenantColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, t.ID, t.Name, t.UID, nullString(t.Description), t.Enabled, t.CreatedAt, t.UpdatedAt)
	return mapWriteError(err)
}

func (s *tenantStore) Get(ctx context.Context, id string) (*identity.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `select `+tenantColumns+` from tenants where id=$1`, id)
	return scanTenant(row)
}

func (s *tenantStore) GetByName(ctx context.Context, name string) (*identity.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `select `+tenantColumns+` from tenants where name=$1`, name)
	return scanTenant(row)
}

func (s *tenantStore) List(ctx context.Context) ([]*identity.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `select `+tenantColumns+` from tenants order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*identity.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *tenantStore) Update(ctx context.Context, t *identity.Tenant) error {
	res, err := s.db.ExecContext(ctx, `
		update tenants set name=$2, description=$3, updated_at=$4 where id=$1
	`, t.ID, t.Name, nullString(t.Description), time.Now().UTC())
	if err != nil {
		return mapWriteError(err)
	}
	return requireRow(res)
}

func (s *tenantStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`update tenants set enabled=$2, updated_at=$3 where id=$1`, id, enabled, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

// roleStore -----------------------------------------------------------------

type roleStore struct{ db *sql.DB }

func (s *roleStore) Create(ctx context.Context, r *identity.Role) error {
	_, err := s.db.ExecContext(ctx, `
		insert into roles(id, name, service_id, description, created_at)
		values ($1,$2,$3,$4,$5)
	`, r.ID, r.Name, nullString(r.ServiceID), nullString(r.Description), r.CreatedAt)
	return mapWriteError(err)
}

func (s *roleStore) Get(ctx context.Context, id string) (*identity.Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, service_id, description, created_at from roles where id=$1`, id)
	var (
		r           identity.Role
		svcID, desc sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Name, &svcID, &desc, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}
	r.ServiceID = fromNull(svcID)
	r.Description = fromNull(desc)
	return &r, nil
}

func (s *roleStore) List(ctx context.Context) ([]*identity.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, service_id, description, created_at from roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*identity.Role
	for rows.Next() {
		var (
			r           identity.Role
			svcID, desc sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &svcID, &desc, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.ServiceID = fromNull(svcID)
		r.Description = fromNull(desc)
		roles = append(roles, &r)
	}
	return roles, rows.Err()
}

func (s *roleStore) Grant(ctx context.Context, a identity.Assignment) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles(user_id, role_id, tenant_id, created_at)
		values ($1,$2,$3,$4)
		on conflict do nothing
	`, a.UserID, a.RoleID, scopeValue(a.Scope), a.CreatedAt)
	return mapWriteError(err)
}

func (s *roleStore) Revoke(ctx context.Context, userID, roleID string, scope identity.RoleScope) error {
	if tid, ok := scope.TenantID(); ok {
		_, err := s.db.ExecContext(ctx,
			`delete from user_roles where user_id=$1 and role_id=$2 and tenant_id=$3`,
			userID, roleID, tid)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`delete from user_roles where user_id=$1 and role_id=$2 and tenant_id is null`,
		userID, roleID)
	return err
}

func (s *roleStore) AssignmentsFor(ctx context.Context, userID string) ([]identity.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`select user_id, role_id, tenant_id, created_at from user_roles where user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []identity.Assignment
	for rows.Next() {
		var (
			a   identity.Assignment
			tid sql.NullString
		)
		if err := rows.Scan(&a.UserID, &a.RoleID, &tid, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Scope = scopeFrom(tid)
		out = append(out, a)
	}
	return out, rows.Err()
}
