package identities

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/HijjazD/CryptoVote/internal/common"
	"github.com/HijjazD/CryptoVote/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewPostgresStore(db)
	s.now = func() time.Time { return testNow }
	return s, mock
}

var identityCols = []string{
	"id", "matric", "email", "password_hash", "email_verified", "last_login", "has_voted", "has_claim",
	"public_address", "verification_token", "verification_token_expires_at", "reset_token", "reset_token_expires_at",
	"version", "created_at", "updated_at",
}

var credentialCols = []string{
	"credential_id", "public_key", "sign_count", "device_type", "backed_up", "backup_eligible",
	"transports", "attestation_type", "aaguid", "created_at",
}

const (
	lockQ       = `SELECT id, email_verified FROM identities\s+WHERE matric = \$1 OR email = \$2\s+FOR UPDATE`
	insertQ     = `INSERT INTO identities \(`
	updateQ     = `UPDATE identities SET`
	deleteQ     = `DELETE FROM identities WHERE id = \$1`
	delCredsQ   = `DELETE FROM passkey_credentials WHERE identity_id = \$1`
	insCredQ    = `INSERT INTO passkey_credentials`
	listCredsQ  = `FROM passkey_credentials\s+WHERE identity_id = \$1\s+ORDER BY position`
	byMatricQ   = `FROM identities WHERE matric = \$1`
	byResetTokQ = `FROM identities WHERE reset_token = \$1 AND reset_token_expires_at > \$2`
)

func newIdentity() *models.Identity {
	return &models.Identity{
		Matric:                     "S1234",
		Email:                      "s1234@student.example.edu",
		VerificationToken:          "123456",
		VerificationTokenExpiresAt: testNow.Add(24 * time.Hour),
	}
}

func TestCreate_ReplacesUnverified(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQ).
		WithArgs("S1234", "s1234@student.example.edu").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email_verified"}).AddRow("old-id", false))
	mock.ExpectExec(deleteQ).WithArgs("old-id").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertQ).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := s.Create(context.Background(), newIdentity())
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, testNow, got.CreatedAt)
	assert.False(t, got.EmailVerified)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_VerifiedExists(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQ).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email_verified"}).AddRow("old-id", true))
	mock.ExpectRollback()

	_, err := s.Create(context.Background(), newIdentity())
	require.ErrorIs(t, err, common.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_TokenCollision(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQ).WillReturnRows(sqlmock.NewRows([]string{"id", "email_verified"}))
	mock.ExpectExec(insertQ).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "identities_verification_token_key"})
	mock.ExpectRollback()

	_, err := s.Create(context.Background(), newIdentity())
	require.ErrorIs(t, err, common.ErrTokenCollision)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_RaceOnMatric(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQ).WillReturnRows(sqlmock.NewRows([]string{"id", "email_verified"}))
	mock.ExpectExec(insertQ).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "identities_matric_key"})
	mock.ExpectRollback()

	_, err := s.Create(context.Background(), newIdentity())
	require.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestSave_ReplacesCredentials(t *testing.T) {
	s, mock := newStoreWithMock(t)

	i := newIdentity()
	i.ID = "2b1f9c1e-6f8e-4f8e-9a55-111111111111"
	i.Version = 3
	i.Credentials = []models.PasskeyCredential{
		{ID: []byte("cred-1"), PublicKey: []byte("pk"), DeviceType: models.DeviceMulti, Transports: []string{"internal"}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(updateQ).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(delCredsQ).WithArgs(i.ID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insCredQ).
		WithArgs("Y3JlZC0x", i.ID, 0, "cGs", int64(0), models.DeviceMulti, false, false, "internal", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Save(context.Background(), i))
	assert.Equal(t, int64(4), i.Version)
	assert.Equal(t, testNow, i.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_VersionConflict(t *testing.T) {
	s, mock := newStoreWithMock(t)

	i := newIdentity()
	i.ID = "2b1f9c1e-6f8e-4f8e-9a55-111111111111"
	i.Version = 3

	mock.ExpectBegin()
	mock.ExpectExec(updateQ).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.Save(context.Background(), i)
	require.ErrorIs(t, err, common.ErrVersionConflict)
	assert.Equal(t, int64(3), i.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_DBError(t *testing.T) {
	s, mock := newStoreWithMock(t)

	i := newIdentity()
	i.ID = "2b1f9c1e-6f8e-4f8e-9a55-111111111111"

	mock.ExpectBegin()
	mock.ExpectExec(updateQ).WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	err := s.Save(context.Background(), i)
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile(`db error: .*db down`), err.Error())
}

func TestFindByMatric_WithCredentials(t *testing.T) {
	s, mock := newStoreWithMock(t)

	id := "2b1f9c1e-6f8e-4f8e-9a55-111111111111"
	mock.ExpectQuery(byMatricQ).
		WithArgs("S1234").
		WillReturnRows(sqlmock.NewRows(identityCols).AddRow(
			id, "S1234", "s1234@student.example.edu", []byte("hash"), true, testNow, false, false,
			nil, nil, nil, "tok", testNow.Add(time.Hour),
			int64(2), testNow, testNow,
		))
	mock.ExpectQuery(listCredsQ).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(credentialCols).AddRow(
			"Y3JlZC0x", "cGs", int64(5), models.DeviceMulti, true, true, "internal,hybrid", "none", nil, testNow,
		))

	got, err := s.FindByMatric(context.Background(), "S1234")
	require.NoError(t, err)

	assert.Equal(t, id, got.ID)
	assert.True(t, got.EmailVerified)
	assert.Equal(t, "", got.VerificationToken)
	assert.Equal(t, "tok", got.ResetToken)
	require.Len(t, got.Credentials, 1)
	c := got.Credentials[0]
	assert.Equal(t, []byte("cred-1"), c.ID)
	assert.Equal(t, []byte("pk"), c.PublicKey)
	assert.Equal(t, uint32(5), c.SignCount)
	assert.Equal(t, []string{"internal", "hybrid"}, c.Transports)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByResetToken_NotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(byResetTokQ).
		WithArgs("tok", testNow).
		WillReturnError(sql.ErrNoRows)

	_, err := s.FindByResetToken(context.Background(), "tok", testNow)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestFindByID_NotUUID(t *testing.T) {
	s, mock := newStoreWithMock(t)

	_, err := s.FindByID(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_DBError(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(deleteQ).WithArgs("x").WillReturnError(errors.New("db err"))

	err := s.Delete(context.Background(), "x")
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile(`db error: .*db err`), err.Error())
}
