package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/email-confirmation/internal/model"
)

// UserRepo reads user rows and updates the primary email attribute.
// User accounts themselves are created and authenticated by the
// external account system; this repo never inserts or deletes them.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,created_at,updated_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// UpdatePrimaryEmail persists a new primary email for the user.
func (r *UserRepo) UpdatePrimaryEmail(ctx context.Context, id uint64, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET email=? WHERE id=?",
		email, id)
	return err
}
