package identities

import (
	"context"
	"database/sql"
	"time"

	"github.com/HijjazD/CryptoVote/internal/common"
	"github.com/HijjazD/CryptoVote/internal/dbx"
	"github.com/HijjazD/CryptoVote/internal/server/models"
	"github.com/HijjazD/CryptoVote/internal/timex"
	"github.com/google/uuid"
)

// PostgresStore implements Store on PostgreSQL, running every write in a
// transaction through PostgresRepository.
type PostgresStore struct {
	db  *sql.DB
	now timex.Clock
}

// NewPostgresStore runs every Store call in its own transaction on db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Create inserts identity, replacing an unverified squatter under row locks.
func (s *PostgresStore) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	out := prepareNew(identity, s.now())

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := NewPostgresRepository(tx)

		conflicts, err := repo.LockConflicts(ctx, out.Matric, out.Email)
		if err != nil {
			return err
		}
		for _, c := range conflicts {
			if c.Verified {
				return common.ErrAlreadyExists
			}
			if err := repo.Delete(ctx, c.ID); err != nil {
				return err
			}
		}

		if err := repo.Insert(ctx, out); err != nil {
			return err
		}
		return repo.InsertCredentials(ctx, out.ID, out.Credentials)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Save updates the row under a version check and rewrites the credential
// list in the same transaction.
func (s *PostgresStore) Save(ctx context.Context, identity *models.Identity) error {
	now := s.now()

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := NewPostgresRepository(tx)
		if err := repo.Update(ctx, identity, now); err != nil {
			return err
		}
		return repo.ReplaceCredentials(ctx, identity.ID, identity.Credentials)
	})
	if err != nil {
		return err
	}

	identity.Version++
	identity.UpdatedAt = now
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	return NewPostgresRepository(s.db).Delete(ctx, id)
}

// FindByID loads the identity and its credentials.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}
	return NewPostgresRepository(s.db).FindByID(ctx, id)
}

func (s *PostgresStore) FindByMatric(ctx context.Context, matric string) (*models.Identity, error) {
	return NewPostgresRepository(s.db).FindByMatric(ctx, matric)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	return NewPostgresRepository(s.db).FindByEmail(ctx, email)
}

func (s *PostgresStore) FindByVerificationToken(ctx context.Context, code string, now time.Time) (*models.Identity, error) {
	return NewPostgresRepository(s.db).FindByVerificationToken(ctx, code, now)
}

func (s *PostgresStore) FindByResetToken(ctx context.Context, token string, now time.Time) (*models.Identity, error) {
	return NewPostgresRepository(s.db).FindByResetToken(ctx, token, now)
}

// prepareNew copies identity and fills the fields owned by the store.
func prepareNew(identity *models.Identity, now time.Time) *models.Identity {
	out := identity.Clone()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	out.Version = 1
	out.CreatedAt = now
	out.UpdatedAt = now
	if out.LastLogin.IsZero() {
		out.LastLogin = now
	}
	return out
}
