package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/cinema-booking-payments/internal/model"
)

// UserRepo is the booking core's user directory.  It reads the shared
// users table, which carries only email, credentials, role and the active
// flag, so name and phone stay empty and the order's contact snapshot
// supplies them.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// GetUserDetail fetches the email of an active user.
func (r *UserRepo) GetUserDetail(ctx context.Context, userID uint64) (*model.UserDetail, error) {
	var u model.UserDetail
	err := r.DB.QueryRowContext(ctx,
		"SELECT email FROM users WHERE id=? AND is_active=1 LIMIT 1",
		userID).Scan(&u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return &u, nil
}
