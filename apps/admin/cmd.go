package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/sanaa/core/organization"
	"github.com/trezcool/sanaa/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	migrateFunc func(ctx context.Context, command string, args ...string) error
	usrSvc      *user.Service
	orgs        organization.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, down, status, redo...)")
	fmt.Println("  addorg -name NAME -admin-name NAME -admin-email EMAIL - register an approved organization")
	fmt.Println("  adduser -email EMAIL -name NAME -role ROLE [-org ORGANIZATION] - create a user")
	fmt.Println("  resetpassword -email EMAIL - reset user's password")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	addOrgCmd := flag.NewFlagSet("addorg", flag.ExitOnError)
	addOrgName := addOrgCmd.String("name", "", "The organization name, as certificates are issued from it.")
	addOrgAdminName := addOrgCmd.String("admin-name", "", "The organization admin's name.")
	addOrgAdminEmail := addOrgCmd.String("admin-email", "", "The organization admin's email.")

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserRole := addUserCmd.String("role", string(user.RoleUser), "One of: user, admin, superAdmin.")
	addUserOrg := addUserCmd.String("org", "", "The user's organization name (required for admins).")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrateFunc(ctx, args[2], args[3:]...)
	case "addorg":
		if err := addOrgCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addOrgName == "" || *addOrgAdminEmail == "" {
			addOrgCmd.Usage()
			return errHelp
		}
		return cli.addOrganization(ctx, *addOrgName, *addOrgAdminName, *addOrgAdminEmail)
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(ctx, user.NewUser{
			Name:             *addUserName,
			Email:            *addUserEmail,
			Password:         pwd,
			Role:             user.Role(*addUserRole),
			OrganizationName: *addUserOrg,
		})
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordEmail, pwd)
	default:
		cli.printUsage()
		return errHelp
	}
}

func promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
