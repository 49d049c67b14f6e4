package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const sessionColumns = `
	id, user_id, hashed_refresh_token, refresh_version,
	ip, user_agent, created_at, expires_at, revoked_at
`

func (s *PostgresStore) Create(ctx context.Context, sess *Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (
			id, user_id, hashed_refresh_token, refresh_version,
			ip, user_agent, created_at, expires_at, revoked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)
	`, sess.ID, sess.UserID, sess.HashedRefreshToken, sess.RefreshVersion,
		sess.IP, sess.UserAgent, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = $1
	`, id)

	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return sess, nil
}

func (s *PostgresStore) FindAllByUser(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return sessions, nil
}

func (s *PostgresStore) UpdateWhere(ctx context.Context, id string, expectedVersion int, rot Rotation) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET hashed_refresh_token = $3,
		    refresh_version = refresh_version + 1,
		    expires_at = $4,
		    ip = $5,
		    user_agent = $6
		WHERE id = $1
		  AND refresh_version = $2
		  AND revoked_at IS NULL
	`, id, expectedVersion, rot.HashedRefreshToken, rot.ExpiresAt, rot.IP, rot.UserAgent)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = $2
		WHERE id = $1
		  AND revoked_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = $2
		WHERE user_id = $1
		  AND revoked_at IS NULL
	`, userID, at)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) RevokeAllExcept(ctx context.Context, userID, keepID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = $3
		WHERE user_id = $1
		  AND id <> $2
		  AND revoked_at IS NULL
	`, userID, keepID, at)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var sess Session
	err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&sess.HashedRefreshToken,
		&sess.RefreshVersion,
		&sess.IP,
		&sess.UserAgent,
		&sess.CreatedAt,
		&sess.ExpiresAt,
		&sess.RevokedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
