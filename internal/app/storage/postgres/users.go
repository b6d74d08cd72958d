package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/canvas/internal/app/domain/user"
)

const userColumns = `id, email, name, password_hash, role, is_active, vbu_id, must_reset_password,
	failed_login_attempts, locked_until, last_login_at, created_at, updated_at`

type userRow struct {
	ID                  string     `db:"id"`
	Email               string     `db:"email"`
	Name                string     `db:"name"`
	PasswordHash        string     `db:"password_hash"`
	Role                string     `db:"role"`
	IsActive            bool       `db:"is_active"`
	VBUID               *string    `db:"vbu_id"`
	MustResetPassword   bool       `db:"must_reset_password"`
	FailedLoginAttempts int        `db:"failed_login_attempts"`
	LockedUntil         *time.Time `db:"locked_until"`
	LastLoginAt         *time.Time `db:"last_login_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

func (r userRow) toDomain() user.User {
	return user.User{
		ID:                  r.ID,
		Email:               r.Email,
		Name:                r.Name,
		Role:                user.Role(r.Role),
		IsActive:            r.IsActive,
		VBUID:               r.VBUID,
		MustResetPassword:   r.MustResetPassword,
		LastLoginAt:         r.LastLoginAt,
		FailedLoginAttempts: r.FailedLoginAttempts,
		LockedUntil:         r.LockedUntil,
		PasswordHash:        r.PasswordHash,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = user.NormalizeEmail(u.Email)
	ts := now()
	u.CreatedAt = ts
	u.UpdatedAt = ts

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, is_active, vbu_id, must_reset_password,
			failed_login_attempts, locked_until, last_login_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, u.ID, u.Email, u.Name, u.PasswordHash, string(u.Role), u.IsActive, u.VBUID, u.MustResetPassword,
		u.FailedLoginAttempts, u.LockedUntil, u.LastLoginAt, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, mapInsertError(err)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	u.Email = user.NormalizeEmail(u.Email)
	u.UpdatedAt = now()

	err := s.db.GetContext(ctx, &u.CreatedAt, `
		UPDATE users
		SET email = $2, name = $3, password_hash = $4, role = $5, is_active = $6, vbu_id = $7,
			must_reset_password = $8, failed_login_attempts = $9, locked_until = $10,
			last_login_at = $11, updated_at = $12
		WHERE id = $1
		RETURNING created_at
	`, u.ID, u.Email, u.Name, u.PasswordHash, string(u.Role), u.IsActive, u.VBUID, u.MustResetPassword,
		u.FailedLoginAttempts, u.LockedUntil, u.LastLoginAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, mapError(err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return user.User{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE email = $1`, user.NormalizeEmail(email)); err != nil {
		return user.User{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY created_at`); err != nil {
		return nil, mapError(err)
	}
	result := make([]user.User, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return requireAffected(s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id))
}
