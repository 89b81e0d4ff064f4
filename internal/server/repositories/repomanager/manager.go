// Package repomanager wires the storage backend selected by configuration:
// PostgreSQL (pgx driver, goose migrations) or an in-memory store.
package repomanager

import (
	"context"

	"github.com/HijjazD/CryptoVote/internal/server/repositories/identities"
)

// RepositoryManager owns the storage backend: migrations, repositories,
// health pings and shutdown.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Identities() identities.Store
	Ping(ctx context.Context) error
	Close() error
}

// New returns a PostgreSQL manager for a non-empty dsn and an in-memory one
// otherwise.
func New(dsn string) (RepositoryManager, error) {
	if dsn == "" {
		return NewMemoryRepositoryManager(), nil
	}
	return NewPostgresRepositoryManager(dsn)
}
