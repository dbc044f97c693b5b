package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"keygate.org/internal/identity"
)

// serviceStore --------------------------------------------------------------

type serviceStore struct{ db *sql.DB }

func scanService(row interface{ Scan(...any) error }) (*identity.Service, error) {
	var (
		svc         identity.Service
		desc, owner sql.NullString
	)
	if err := row.Scan(&svc.ID, &svc.Name, &svc.Type, &desc, &owner, &svc.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}
	svc.Description = fromNull(desc)
	svc.OwnerID = fromNull(owner)
	return &svc, nil
}

func (s *serviceStore) Create(ctx context.Context, svc *identity.Service) error {
	_, err := s.db.ExecContext(ctx, `
		insert into services(id, name, type, description, owner_id, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, svc.ID, svc.Name, svc.Type, nullString(svc.Description), nullString(svc.OwnerID), svc.CreatedAt)
	return mapWriteError(err)
}

func (s *serviceStore) Get(ctx context.Context, id string) (*identity.Service, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, type, description, owner_id, created_at from services where id=$1`, id)
	return scanService(row)
}

func (s *serviceStore) GetByName(ctx context.Context, name string) (*identity.Service, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, type, description, owner_id, created_at from services where name=$1`, name)
	return scanService(row)
}

func (s *serviceStore) List(ctx context.Context) ([]*identity.Service, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, type, description, owner_id, created_at from services order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []*identity.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

// endpointStore -------------------------------------------------------------

type endpointStore struct{ db *sql.DB }

const templateColumns = `id, service_id, region, public_url, internal_url, admin_url, is_global, enabled, version_id, version_list, version_info, created_at`

func scanTemplate(row interface{ Scan(...any) error }) (*identity.EndpointTemplate, error) {
	var (
		t                 identity.EndpointTemplate
		vID, vList, vInfo sql.NullString
	)
	if err := row.Scan(&t.ID, &t.ServiceID, &t.Region, &t.PublicURL, &t.InternalURL, &t.AdminURL,
		&t.Global, &t.Enabled, &vID, &vList, &vInfo, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}
	t.VersionID = fromNull(vID)
	t.VersionList = fromNull(vList)
	t.VersionInfo = fromNull(vInfo)
	return &t, nil
}

func (s *endpointStore) CreateTemplate(ctx context.Context, t *identity.EndpointTemplate) error {
	_, err := s.db.ExecContext(ctx, `
		insert into endpoint_templates(`+templateColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, t.ID, t.ServiceID, t.Region, t.PublicURL, t.InternalURL, t.AdminURL, t.Global, t.Enabled,
		nullString(t.VersionID), nullString(t.VersionList), nullString(t.VersionInfo), t.CreatedAt)
	return mapWriteError(err)
}

func (s *endpointStore) GetTemplate(ctx context.Context, id string) (*identity.EndpointTemplate, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+templateColumns+` from endpoint_templates where id=$1`, id)
	return scanTemplate(row)
}

func (s *endpointStore) ListTemplates(ctx context.Context) ([]*identity.EndpointTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+templateColumns+` from endpoint_templates order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*identity.EndpointTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *endpointStore) SetTemplateEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`update endpoint_templates set enabled=$2 where id=$1`, id, enabled)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *endpointStore) CreateEndpoint(ctx context.Context, e *identity.Endpoint) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into endpoints(id, template_id, tenant_id, created_at)
		values ($1,$2,$3,$4)
	`, e.ID, e.TemplateID, e.TenantID, e.CreatedAt)
	return mapWriteError(err)
}

func (s *endpointStore) ListEndpointsByTenant(ctx context.Context, tenantID string) ([]*identity.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, template_id, tenant_id, created_at from endpoints where tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []*identity.Endpoint
	for rows.Next() {
		var e identity.Endpoint
		if err := rows.Scan(&e.ID, &e.TemplateID, &e.TenantID, &e.CreatedAt); err != nil {
			return nil, err
		}
		endpoints = append(endpoints, &e)
	}
	return endpoints, rows.Err()
}
