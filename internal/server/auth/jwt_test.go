package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/HijjazD/CryptoVote/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clockAt(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestSession_IssueAndVerify(t *testing.T) {
	t.Parallel()

	s := NewSessionIssuer("super-secret", 7*24*time.Hour, nil)

	tok, err := s.Issue("identity-123")
	require.NoError(t, err)

	got, err := s.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "identity-123", got)
}

func TestSession_Expired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := NewSessionIssuer("secret", time.Hour, clockAt(&now))

	tok, err := s.Issue("u1")
	require.NoError(t, err)

	now = now.Add(time.Hour + time.Minute)
	_, err = s.Verify(tok)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
	require.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestSession_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := NewSessionIssuer("right-secret", time.Hour, nil).Issue("u2")
	require.NoError(t, err)

	_, err = NewSessionIssuer("wrong-secret", time.Hour, nil).Verify(tok)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestSession_MalformedAndEmpty(t *testing.T) {
	t.Parallel()

	s := NewSessionIssuer("k", time.Hour, nil)

	_, err := s.Verify("not.a.jwt")
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = s.Verify("")
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestSession_RejectsChallengeToken(t *testing.T) {
	t.Parallel()

	b := NewChallengeBinder("shared", time.Minute, nil)
	tok, _, err := b.Start(Challenge{Kind: common.CeremonyLogin, UserHandle: "u1", Challenge: "c"})
	require.NoError(t, err)

	_, err = NewSessionIssuer("shared", time.Hour, nil).Verify(tok)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestSession_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{sessionAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: "attacker",
	})
	tok, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewSessionIssuer("k", time.Hour, nil).Verify(tok)
	require.True(t, errors.Is(err, common.ErrorUnauthorized))
}
