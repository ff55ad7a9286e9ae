package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/sanaa/core"
	"github.com/trezcool/sanaa/core/user"
)

const userColumns = `id, name, email, password_hash, role, organization_name, is_active, created_at, updated_at, last_login`

type userRow struct {
	user.User
	LastLogin null.Time `db:"last_login"`
}

func (row userRow) toUser() user.User {
	usr := row.User
	usr.LastLogin = row.LastLogin.Time
	return usr
}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	_, err := repo.exec.ExecContext(ctx,
		`INSERT INTO "user" (id, name, email, password_hash, role, organization_name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		usr.ID, usr.Name, usr.Email, usr.PasswordHash, usr.Role, usr.OrganizationName, usr.IsActive,
		usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(),
	)
	if err != nil {
		return user.User{}, dbError(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.User{}, user.ErrNotFound
	}
	var row userRow
	if err := repo.exec.GetContext(ctx, &row, `SELECT `+userColumns+` FROM "user" WHERE id = $1`, id); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user by ID")
	}
	return row.toUser(), nil
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var row userRow
	if err := repo.exec.GetContext(ctx, &row, `SELECT `+userColumns+` FROM "user" WHERE email = $1`, email); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user by email")
	}
	return row.toUser(), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	res, err := repo.exec.ExecContext(ctx,
		`UPDATE "user" SET name = $2, email = $3, password_hash = $4, role = $5, organization_name = $6,
		is_active = $7, updated_at = $8 WHERE id = $1`,
		usr.ID, usr.Name, usr.Email, usr.PasswordHash, usr.Role, usr.OrganizationName, usr.IsActive, usr.UpdatedAt.UTC(),
	)
	if err != nil {
		return user.User{}, dbError(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := repo.exec.ExecContext(ctx, `UPDATE "user" SET last_login = $2 WHERE id = $1`, id, at.UTC()); err != nil {
		return dbError(err, "setting last login")
	}
	return nil
}
