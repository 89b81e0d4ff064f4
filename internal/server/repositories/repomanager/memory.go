package repomanager

import (
	"context"

	"github.com/HijjazD/CryptoVote/internal/server/repositories/identities"
)

// MemoryRepositoryManager keeps everything in process memory. Data is lost
// on restart.
type MemoryRepositoryManager struct {
	identities *identities.MemoryStore
}

// NewMemoryRepositoryManager backs the server with process memory.
func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{identities: identities.NewMemoryStore()}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *MemoryRepositoryManager) Identities() identities.Store { return m.identities }

func (m *MemoryRepositoryManager) Ping(context.Context) error { return nil }

func (m *MemoryRepositoryManager) Close() error { return nil }
