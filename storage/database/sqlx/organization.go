package sqlxrepos

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/sanaa/core"
	"github.com/trezcool/sanaa/core/organization"
)

const orgColumns = `id, name, approval_status, published, admin_name, admin_email, created_at`

type organizationRepository struct {
	exec core.DBExecutor
}

var _ organization.Repository = (*organizationRepository)(nil) // interface compliance check

func NewOrganizationRepository(exec core.DBExecutor) *organizationRepository {
	return &organizationRepository{exec: exec}
}

func (repo organizationRepository) CreateOrganization(ctx context.Context, org organization.Organization) (organization.Organization, error) {
	org.ID = uuid.New().String()
	_, err := repo.exec.ExecContext(ctx,
		`INSERT INTO organization (id, name, approval_status, published, admin_name, admin_email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		org.ID, org.Name, org.ApprovalStatus, org.Published, org.AdminName, org.AdminEmail, org.CreatedAt.UTC(),
	)
	if err != nil {
		return organization.Organization{}, dbError(err, "inserting organization")
	}
	return org, nil
}

func (repo organizationRepository) GetOrganizationByID(ctx context.Context, id string) (organization.Organization, error) {
	if _, err := uuid.Parse(id); err != nil {
		return organization.Organization{}, organization.ErrNotFound
	}
	var org organization.Organization
	if err := repo.exec.GetContext(ctx, &org, `SELECT `+orgColumns+` FROM organization WHERE id = $1`, id); err != nil {
		return organization.Organization{}, trapNoRowsErr(err, organization.ErrNotFound, "finding organization by ID")
	}
	return org, nil
}

func (repo organizationRepository) GetOrganizationByName(ctx context.Context, name string) (organization.Organization, error) {
	var org organization.Organization
	if err := repo.exec.GetContext(ctx, &org, `SELECT `+orgColumns+` FROM organization WHERE name = $1`, name); err != nil {
		return organization.Organization{}, trapNoRowsErr(err, organization.ErrNotFound, "finding organization by name")
	}
	return org, nil
}
