package user

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/sanaa/core"
)

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		SetLastLogin(ctx context.Context, id string, at time.Time) error
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
		logger   core.Logger
	}
)

func NewService(repo Repository, validate *validator.Validate, logger core.Logger) *Service {
	return &Service{repo: repo, validate: validate, logger: logger}
}

// Create validates nu against the password policy and persists a new active User.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	nu.Clean()
	if err := svc.validate.Struct(nu); err != nil {
		return User{}, err
	}
	if _, err := svc.repo.GetUserByEmail(ctx, nu.Email); err == nil {
		return User{}, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	} else if err != ErrNotFound {
		return User{}, pkgerrors.Wrap(err, "checking email uniqueness")
	}

	now := time.Now().UTC()
	usr := User{
		Name:             nu.Name,
		Email:            nu.Email,
		Role:             nu.Role,
		OrganizationName: nu.OrganizationName,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, pkgerrors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

// SetPassword replaces the password of the User identified by email.
func (svc *Service) SetPassword(ctx context.Context, email, pwd string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := ValidatePassword(pwd, usr); err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return pkgerrors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	now := time.Now().UTC()
	if err := svc.repo.SetLastLogin(ctx, usr.ID, now); err != nil {
		return User{}, pkgerrors.Wrap(err, "setting last login")
	}
	usr.LastLogin = now
	return usr, nil
}
