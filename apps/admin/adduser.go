package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/sanaa/core"
	"github.com/trezcool/sanaa/core/organization"
	"github.com/trezcool/sanaa/core/user"
)

func (cli *commandLine) addUser(ctx context.Context, nu user.NewUser) error {
	if nu.OrganizationName != "" {
		if _, err := cli.orgs.GetOrganizationByName(ctx, core.CleanString(nu.OrganizationName)); err != nil {
			return errors.Wrapf(err, "finding organization %q", nu.OrganizationName)
		}
	}
	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return err
	}
	fmt.Printf("user %s <%s> created (%s)\n", usr.Name, usr.Email, usr.Role)
	return nil
}

func (cli *commandLine) addOrganization(ctx context.Context, name, adminName, adminEmail string) error {
	name = core.CleanString(name)
	if _, err := cli.orgs.GetOrganizationByName(ctx, name); err == nil {
		return errors.Errorf("organization %q already exists", name)
	} else if errors.Cause(err) != organization.ErrNotFound {
		return err
	}

	org, err := cli.orgs.CreateOrganization(ctx, organization.Organization{
		Name:           name,
		ApprovalStatus: organization.StatusApproved,
		Published:      true,
		AdminName:      core.CleanString(adminName),
		AdminEmail:     core.CleanString(adminEmail, true /* lower */),
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	fmt.Printf("organization %s created (%s)\n", org.Name, org.ID)
	return nil
}
