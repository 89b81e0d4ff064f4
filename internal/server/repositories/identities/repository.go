// Package identities is the credential store: student identities together
// with their verification/reset tokens and bound passkey credentials.
package identities

import (
	"context"
	"time"

	"github.com/HijjazD/CryptoVote/internal/server/models"
)

// Store persists identities. Implementations must make every method atomic
// per identity.
//
// Create fails with common.ErrAlreadyExists when a verified identity owns
// the matric or email; an unverified one is replaced. A verification code
// already held by another identity yields common.ErrTokenCollision.
//
// Save rejects stale writes with common.ErrVersionConflict and replaces the
// bound credential list in the same unit of work.
//
// Finders return common.ErrorNotFound when nothing matches. Token finders
// only match tokens that expire after now.
type Store interface {
	Create(ctx context.Context, identity *models.Identity) (*models.Identity, error)
	FindByID(ctx context.Context, id string) (*models.Identity, error)
	FindByMatric(ctx context.Context, matric string) (*models.Identity, error)
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	FindByVerificationToken(ctx context.Context, code string, now time.Time) (*models.Identity, error)
	FindByResetToken(ctx context.Context, token string, now time.Time) (*models.Identity, error)
	Save(ctx context.Context, identity *models.Identity) error
	Delete(ctx context.Context, id string) error
}
