package auth

import (
	"testing"
	"time"

	"github.com/HijjazD/CryptoVote/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChallenge_RoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := NewChallengeBinder("secret", 60*time.Second, clockAt(&now))

	tok, exp, err := b.Start(Challenge{
		Kind:       common.CeremonyRegistration,
		Email:      "s1234@student.example.edu",
		UserHandle: "S1234",
		Challenge:  "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), exp)

	got, err := b.Read(tok, common.CeremonyRegistration)
	require.NoError(t, err)
	assert.Equal(t, "s1234@student.example.edu", got.Email)
	assert.Equal(t, "S1234", got.UserHandle)
	assert.Equal(t, "abc", got.Challenge)
	assert.True(t, got.ExpiresAt.Equal(exp))
}

func TestChallenge_ExpiresAfterTTL(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := NewChallengeBinder("secret", 60*time.Second, clockAt(&now))

	tok, _, err := b.Start(Challenge{Kind: common.CeremonyLogin, UserHandle: "id", Challenge: "abc"})
	require.NoError(t, err)

	now = now.Add(59 * time.Second)
	_, err = b.Read(tok, common.CeremonyLogin)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = b.Read(tok, common.CeremonyLogin)
	require.ErrorIs(t, err, common.ErrChallengeMissing)
}

func TestChallenge_Rejects(t *testing.T) {
	b := NewChallengeBinder("secret", time.Minute, nil)
	tok, _, err := b.Start(Challenge{Kind: common.CeremonyLogin, UserHandle: "id", Challenge: "abc"})
	require.NoError(t, err)

	sessionTok, err := NewSessionIssuer("secret", time.Hour, nil).Issue("id")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		kind  string
		b     *ChallengeBinder
	}{
		{name: "missing", token: "", kind: common.CeremonyLogin, b: b},
		{name: "malformed", token: "garbage", kind: common.CeremonyLogin, b: b},
		{name: "tampered", token: tok + "x", kind: common.CeremonyLogin, b: b},
		{name: "wrong secret", token: tok, kind: common.CeremonyLogin, b: NewChallengeBinder("other", time.Minute, nil)},
		{name: "wrong ceremony", token: tok, kind: common.CeremonyRegistration, b: b},
		{name: "session token", token: sessionTok, kind: common.CeremonyLogin, b: b},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Read(tt.token, tt.kind)
			require.ErrorIs(t, err, common.ErrChallengeMissing)
		})
	}
}

func TestChallenge_StartValidates(t *testing.T) {
	b := NewChallengeBinder("secret", time.Minute, nil)
	_, _, err := b.Start(Challenge{Kind: common.CeremonyLogin})
	require.Error(t, err)
}
