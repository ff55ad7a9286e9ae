// Package organization holds the read-only organization anchor used for access scoping.
package organization

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("organization not found")

type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

type Organization struct {
	ID             string         `json:"id" db:"id"`
	Name           string         `json:"name" db:"name"`
	ApprovalStatus ApprovalStatus `json:"approval_status" db:"approval_status"`
	Published      bool           `json:"published" db:"published"`
	AdminName      string         `json:"admin_name" db:"admin_name"`
	AdminEmail     string         `json:"admin_email" db:"admin_email"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

func (o Organization) IsApproved() bool { return o.ApprovalStatus == StatusApproved }

type Repository interface {
	CreateOrganization(ctx context.Context, org Organization) (Organization, error)
	GetOrganizationByID(ctx context.Context, id string) (Organization, error)
	GetOrganizationByName(ctx context.Context, name string) (Organization, error)
}
