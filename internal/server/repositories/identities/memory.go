package identities

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/HijjazD/CryptoVote/internal/common"
	"github.com/HijjazD/CryptoVote/internal/server/models"
	"github.com/HijjazD/CryptoVote/internal/timex"
)

// MemoryStore is an in-process Store used when no database is configured
// and in tests. Callers always receive copies.
type MemoryStore struct {
	mu   sync.Mutex
	byID map[string]*models.Identity
	now  timex.Clock
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*models.Identity), now: time.Now}
}

// Create stores a copy of identity with a fresh id and version 1. A squatted
// unverified record holding the same matric or email is replaced; a verified
// one yields common.ErrAlreadyExists.
func (s *MemoryStore) Create(_ context.Context, identity *models.Identity) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := prepareNew(identity, s.now())

	var replaced []string
	for id, existing := range s.byID {
		if existing.Matric != out.Matric && existing.Email != out.Email {
			continue
		}
		if existing.EmailVerified {
			return nil, common.ErrAlreadyExists
		}
		replaced = append(replaced, id)
	}

	if err := s.checkUnique(out, replaced...); err != nil {
		return nil, err
	}

	for _, id := range replaced {
		delete(s.byID, id)
	}
	s.byID[out.ID] = out.Clone()
	return out, nil
}

// Save replaces the stored identity when its version matches and bumps the
// version on both copies. A stale version yields common.ErrVersionConflict.
func (s *MemoryStore) Save(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[identity.ID]
	if !ok || stored.Version != identity.Version {
		return common.ErrVersionConflict
	}
	if err := s.checkUnique(identity, identity.ID); err != nil {
		return err
	}

	next := identity.Clone()
	next.Version++
	next.UpdatedAt = s.now()
	s.byID[identity.ID] = next

	identity.Version = next.Version
	identity.UpdatedAt = next.UpdatedAt
	return nil
}

// Delete removes the identity; a missing id is not an error.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

// FindByID returns a copy of the identity or common.ErrorNotFound.
func (s *MemoryStore) FindByID(_ context.Context, id string) (*models.Identity, error) {
	return s.find(func(i *models.Identity) bool { return i.ID == id })
}

// FindByMatric looks up by the upper-cased matric number.
func (s *MemoryStore) FindByMatric(_ context.Context, matric string) (*models.Identity, error) {
	return s.find(func(i *models.Identity) bool { return i.Matric == matric })
}

// FindByEmail looks up by the derived student email.
func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*models.Identity, error) {
	return s.find(func(i *models.Identity) bool { return i.Email == email })
}

// FindByVerificationToken matches a code that is still live at now.
func (s *MemoryStore) FindByVerificationToken(_ context.Context, code string, now time.Time) (*models.Identity, error) {
	if code == "" {
		return nil, common.ErrorNotFound
	}
	return s.find(func(i *models.Identity) bool {
		return i.VerificationToken == code && i.VerificationTokenExpiresAt.After(now)
	})
}

// FindByResetToken matches a setup or reset token that is still live at now.
func (s *MemoryStore) FindByResetToken(_ context.Context, token string, now time.Time) (*models.Identity, error) {
	if token == "" {
		return nil, common.ErrorNotFound
	}
	return s.find(func(i *models.Identity) bool {
		return i.ResetToken == token && i.ResetTokenExpiresAt.After(now)
	})
}

func (s *MemoryStore) find(match func(*models.Identity) bool) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.byID {
		if match(i) {
			return i.Clone(), nil
		}
	}
	return nil, common.ErrorNotFound
}

// checkUnique mirrors the table constraints. Identities listed in skip are
// ignored. Caller holds mu.
func (s *MemoryStore) checkUnique(candidate *models.Identity, skip ...string) error {
	for id, other := range s.byID {
		if slices.Contains(skip, id) {
			continue
		}
		switch {
		case other.Matric == candidate.Matric, other.Email == candidate.Email:
			return common.ErrAlreadyExists
		case candidate.VerificationToken != "" && other.VerificationToken == candidate.VerificationToken,
			candidate.ResetToken != "" && other.ResetToken == candidate.ResetToken:
			return common.ErrTokenCollision
		}
		for _, c := range candidate.Credentials {
			if _, taken := other.FindCredential(c.ID); taken {
				return common.ErrAlreadyExists
			}
		}
	}
	return nil
}
