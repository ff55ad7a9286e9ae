package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/sanaa/core/organization"
)

type organizationRepository struct {
	db *DB
}

var _ organization.Repository = (*organizationRepository)(nil) // interface compliance check

func NewOrganizationRepository(db *DB) *organizationRepository {
	return &organizationRepository{db: db}
}

func (repo *organizationRepository) CreateOrganization(_ context.Context, org organization.Organization) (organization.Organization, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	repo.db.organizations[org.ID] = &org
	return org, nil
}

func (repo *organizationRepository) GetOrganizationByID(_ context.Context, id string) (organization.Organization, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if org, ok := repo.db.organizations[id]; ok {
		return *org, nil
	}
	return organization.Organization{}, organization.ErrNotFound
}

func (repo *organizationRepository) GetOrganizationByName(_ context.Context, name string) (organization.Organization, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, org := range repo.db.organizations {
		if org.Name == name {
			return *org, nil
		}
	}
	return organization.Organization{}, organization.ErrNotFound
}
