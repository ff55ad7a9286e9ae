package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/sanaa/core"
)

// Role is the access level of a User.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superAdmin"
)

var (
	AllRoles = []Role{RoleUser, RoleAdmin, RoleSuperAdmin}

	rolePriorities = map[Role]int{
		RoleSuperAdmin: 30,
		RoleAdmin:      20,
		RoleUser:       1,
	}
)

func (r Role) Valid() bool {
	_, ok := rolePriorities[r]
	return ok
}

func (r Role) Priority() int {
	return rolePriorities[r]
}

type User struct {
	ID               string    `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	Email            string    `json:"email" db:"email"`
	Role             Role      `json:"role" db:"role"`
	OrganizationName string    `json:"organization_name" db:"organization_name"`
	IsActive         bool      `json:"is_active" db:"is_active"`
	PasswordHash     []byte    `json:"-" db:"password_hash"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"` // UTC
	LastLogin        time.Time `json:"last_login" db:"-"`          // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool      { return u.Role == RoleAdmin || u.Role == RoleSuperAdmin }
func (u *User) IsSuperAdmin() bool { return u.Role == RoleSuperAdmin }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name             string `json:"name" validate:"required"`
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required"`
	Role             Role   `json:"role" validate:"required,userrole"`
	OrganizationName string `json:"organization_name" validate:"required_if=Role admin"`
}

func (nu *NewUser) Clean() {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.OrganizationName = core.CleanString(nu.OrganizationName)
}
