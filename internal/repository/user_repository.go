package repository

import (
	"context"
	"database/sql"

	appErrors "github.com/unclebandit/mailer-backend/internal/errors"
	"github.com/unclebandit/mailer-backend/internal/model"
)

// UserRepositoryInterface is the read-only view of the externally managed users table.
type UserRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.User, error)
}

type UserRepository struct {
	DB *sql.DB
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (*model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx, `SELECT id, email, username FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Username)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

var _ UserRepositoryInterface = (*UserRepository)(nil)
