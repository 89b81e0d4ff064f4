package identities

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HijjazD/CryptoVote/internal/common"
	"github.com/HijjazD/CryptoVote/internal/dbx"
	"github.com/HijjazD/CryptoVote/internal/server/models"
)

const identityColumns = `id, matric, email, password_hash, email_verified, last_login, has_voted, has_claim,
		public_address, verification_token, verification_token_expires_at, reset_token, reset_token_expires_at,
		version, created_at, updated_at`

// PostgresRepository runs identity statements over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx). Multi-statement operations are composed by
// PostgresStore inside a transaction.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Conflict is an identity that already owns a matric or email.
type Conflict struct {
	ID       string
	Verified bool
}

// LockConflicts returns and row-locks identities owning matric or email.
func (r *PostgresRepository) LockConflicts(ctx context.Context, matric, email string) ([]Conflict, error) {
	query := `
		SELECT id, email_verified FROM identities
		WHERE matric = $1 OR email = $2
		FOR UPDATE
	`
	rows, err := r.db.QueryContext(ctx, query, matric, email)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []Conflict
	for rows.Next() {
		var c Conflict
		if err := rows.Scan(&c.ID, &c.Verified); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// Insert writes a new identity row.
func (r *PostgresRepository) Insert(ctx context.Context, i *models.Identity) error {
	query := `
		INSERT INTO identities (id, matric, email, password_hash, email_verified, last_login,
			has_voted, has_claim, public_address, verification_token, verification_token_expires_at,
			reset_token, reset_token_expires_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, NULLIF($12, ''), $13, $14, $15, $16)
	`
	_, err := r.db.ExecContext(ctx, query,
		i.ID, i.Matric, i.Email, i.PasswordHash, i.EmailVerified, i.LastLogin,
		i.HasVoted, i.HasClaim, i.PublicAddress, i.VerificationToken, nullTime(i.VerificationTokenExpiresAt),
		i.ResetToken, nullTime(i.ResetTokenExpiresAt), i.Version, i.CreatedAt, i.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

// Update writes i if its version still matches the stored one and bumps
// the stored version. A missing or stale row yields common.ErrVersionConflict.
func (r *PostgresRepository) Update(ctx context.Context, i *models.Identity, now time.Time) error {
	query := `
		UPDATE identities SET
			matric = $2, email = $3, password_hash = $4, email_verified = $5, last_login = $6,
			has_voted = $7, has_claim = $8, public_address = NULLIF($9, ''),
			verification_token = NULLIF($10, ''), verification_token_expires_at = $11,
			reset_token = NULLIF($12, ''), reset_token_expires_at = $13,
			version = version + 1, updated_at = $14
		WHERE id = $1 AND version = $15
	`
	res, err := r.db.ExecContext(ctx, query,
		i.ID, i.Matric, i.Email, i.PasswordHash, i.EmailVerified, i.LastLogin,
		i.HasVoted, i.HasClaim, i.PublicAddress,
		i.VerificationToken, nullTime(i.VerificationTokenExpiresAt),
		i.ResetToken, nullTime(i.ResetTokenExpiresAt),
		now, i.Version)
	if err != nil {
		return mapWriteError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrVersionConflict
	}
	return nil
}

// Delete removes an identity; its credentials go with it.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM identities WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FindByID and the other finders return the identity row without its
// credentials, or common.ErrorNotFound.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.Identity, error) {
	return r.findOne(ctx, `id = $1`, id)
}

func (r *PostgresRepository) FindByMatric(ctx context.Context, matric string) (*models.Identity, error) {
	return r.findOne(ctx, `matric = $1`, matric)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	return r.findOne(ctx, `email = $1`, email)
}

func (r *PostgresRepository) FindByVerificationToken(ctx context.Context, code string, now time.Time) (*models.Identity, error) {
	return r.findOne(ctx, `verification_token = $1 AND verification_token_expires_at > $2`, code, now)
}

func (r *PostgresRepository) FindByResetToken(ctx context.Context, token string, now time.Time) (*models.Identity, error) {
	return r.findOne(ctx, `reset_token = $1 AND reset_token_expires_at > $2`, token, now)
}

func (r *PostgresRepository) findOne(ctx context.Context, where string, args ...any) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE ` + where

	i, err := scanIdentity(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	creds, err := r.ListCredentials(ctx, i.ID)
	if err != nil {
		return nil, err
	}
	i.Credentials = creds
	return i, nil
}

// ListCredentials returns the credentials bound to an identity in
// registration order.
func (r *PostgresRepository) ListCredentials(ctx context.Context, identityID string) ([]models.PasskeyCredential, error) {
	query := `
		SELECT credential_id, public_key, sign_count, device_type, backed_up, backup_eligible,
			transports, attestation_type, aaguid, created_at
		FROM passkey_credentials
		WHERE identity_id = $1
		ORDER BY position
	`
	rows, err := r.db.QueryContext(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.PasskeyCredential
	for rows.Next() {
		var (
			c          models.PasskeyCredential
			id, pk     string
			signCount  int64
			transports string
		)
		if err := rows.Scan(&id, &pk, &signCount, &c.DeviceType, &c.BackedUp, &c.BackupEligible,
			&transports, &c.AttestationType, &c.AAGUID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if c.ID, err = decodeKey(id); err != nil {
			return nil, fmt.Errorf("decode credential id: %w", err)
		}
		if c.PublicKey, err = decodeKey(pk); err != nil {
			return nil, fmt.Errorf("decode public key: %w", err)
		}
		c.SignCount = uint32(signCount)
		c.Transports = splitTransports(transports)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// InsertCredentials appends creds for identityID in slice order.
func (r *PostgresRepository) InsertCredentials(ctx context.Context, identityID string, creds []models.PasskeyCredential) error {
	query := `
		INSERT INTO passkey_credentials (credential_id, identity_id, position, public_key, sign_count,
			device_type, backed_up, backup_eligible, transports, attestation_type, aaguid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	for pos, c := range creds {
		_, err := r.db.ExecContext(ctx, query,
			encodeKey(c.ID), identityID, pos, encodeKey(c.PublicKey), int64(c.SignCount),
			c.DeviceType, c.BackedUp, c.BackupEligible, strings.Join(c.Transports, ","),
			c.AttestationType, c.AAGUID, c.CreatedAt)
		if err != nil {
			return mapWriteError(err)
		}
	}
	return nil
}

// ReplaceCredentials swaps the whole credential list of identityID.
func (r *PostgresRepository) ReplaceCredentials(ctx context.Context, identityID string, creds []models.PasskeyCredential) error {
	query := `DELETE FROM passkey_credentials WHERE identity_id = $1`
	if _, err := r.db.ExecContext(ctx, query, identityID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.InsertCredentials(ctx, identityID, creds)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*models.Identity, error) {
	var (
		i                       models.Identity
		address, vToken, rToken sql.NullString
		vExpiresAt, rExpiresAt  sql.NullTime
	)
	err := row.Scan(&i.ID, &i.Matric, &i.Email, &i.PasswordHash, &i.EmailVerified, &i.LastLogin,
		&i.HasVoted, &i.HasClaim, &address, &vToken, &vExpiresAt, &rToken, &rExpiresAt,
		&i.Version, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	i.PublicAddress = address.String
	i.VerificationToken = vToken.String
	i.VerificationTokenExpiresAt = vExpiresAt.Time
	i.ResetToken = rToken.String
	i.ResetTokenExpiresAt = rExpiresAt.Time
	return &i, nil
}

func mapWriteError(err error) error {
	name, ok := dbx.UniqueViolation(err)
	if !ok {
		return fmt.Errorf("db error: %w", err)
	}
	switch name {
	case "identities_verification_token_key", "identities_reset_token_key":
		return fmt.Errorf("%w: %s", common.ErrTokenCollision, name)
	default:
		return fmt.Errorf("%w: %s", common.ErrAlreadyExists, name)
	}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func encodeKey(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeKey(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

func splitTransports(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
