package sqlstore

import (
	"context"
	"time"

	"github.com/finsightai/finsight/internal/auth/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, email, full_name, password_hash, status, created_at, updated_at`

type usersRepo struct {
	q *queries
}

func scanUser(row scanner) (domain.User, error) {
	var (
		u      domain.User
		status string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, err
	}
	u.Status = domain.UserStatus(status)
	u.CreatedAt = utc(u.CreatedAt)
	u.UpdatedAt = utc(u.UpdatedAt)
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.exec(ctx, `
		INSERT INTO users (id, email, full_name, password_hash, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.FullName, u.PasswordHash, string(u.Status), utc(u.CreatedAt), utc(u.UpdatedAt),
	)
	return err
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(r.q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	return u, r.q.mapErr(err)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	u, err := scanUser(r.q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	return u, r.q.mapErr(err)
}

func (r *usersRepo) UpdateUserStatus(ctx context.Context, id string, status domain.UserStatus, at time.Time) error {
	return r.q.execOne(ctx, `UPDATE users SET status = ?, updated_at = ? WHERE id = ?`, string(status), utc(at), id)
}
