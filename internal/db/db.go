// Package db opens the Postgres pool and embeds the schema migrations.
package db

import (
	"context"
	"embed"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MigrationFS embeds the SQL migration files for the migrate runner.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
