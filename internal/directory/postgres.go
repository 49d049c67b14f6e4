package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory implements Directory over the users table.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) FindByEmail(ctx context.Context, email string) (*User, error) {
	return d.find(ctx, `
		SELECT id, email, role, password_hash, status
		FROM users
		WHERE email = $1
	`, NormalizeEmail(email))
}

func (d *PostgresDirectory) FindByID(ctx context.Context, id string) (*User, error) {
	return d.find(ctx, `
		SELECT id, email, role, password_hash, status
		FROM users
		WHERE id = $1
	`, id)
}

func (d *PostgresDirectory) find(ctx context.Context, query, arg string) (*User, error) {
	var user User
	err := d.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Role,
		&user.PasswordHash,
		&user.Status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	return &user, nil
}
