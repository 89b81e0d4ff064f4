package auth

import (
	"fmt"
	"time"

	"github.com/HijjazD/CryptoVote/internal/common"
	"github.com/HijjazD/CryptoVote/internal/timex"
	"github.com/golang-jwt/jwt/v5"
)

// Challenge is the in-flight ceremony state carried by the challenge cookie.
type Challenge struct {
	Kind       string
	Email      string
	UserHandle string
	Challenge  string
	ExpiresAt  time.Time
}

// ChallengeClaims is the signed form of a Challenge.
type ChallengeClaims struct {
	jwt.RegisteredClaims
	Kind       string `json:"kind"`
	Email      string `json:"email"`
	UserHandle string `json:"handle"`
	Challenge  string `json:"challenge"`
}

// ChallengeBinder binds a WebAuthn challenge to an identity for the length
// of one ceremony. The signed token is the only server memory of it.
type ChallengeBinder struct {
	secret []byte
	ttl    time.Duration
	now    timex.Clock
}

// NewChallengeBinder signs challenge tokens with secret. Tokens live for ttl;
// a nil now uses time.Now.
func NewChallengeBinder(secret string, ttl time.Duration, now timex.Clock) *ChallengeBinder {
	if now == nil {
		now = time.Now
	}
	return &ChallengeBinder{secret: []byte(secret), ttl: ttl, now: now}
}

// TTL is the lifetime of a challenge token and of its cookie.
func (b *ChallengeBinder) TTL() time.Duration { return b.ttl }

// Start signs c with an expiry of now+TTL. c.ExpiresAt is ignored and the
// effective value is returned.
func (b *ChallengeBinder) Start(c Challenge) (string, time.Time, error) {
	if c.Kind == "" || c.Challenge == "" {
		return "", time.Time{}, fmt.Errorf("challenge: kind and value are required")
	}
	now := b.now()
	expiresAt := now.Add(b.ttl)
	token, err := signToken(b.secret, ChallengeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{challengeAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Kind:       c.Kind,
		Email:      c.Email,
		UserHandle: c.UserHandle,
		Challenge:  c.Challenge,
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt.Truncate(time.Second), nil
}

// Read verifies signature and expiry together and checks the ceremony kind.
// Any failure, including an empty token, wraps common.ErrChallengeMissing.
func (b *ChallengeBinder) Read(token, kind string) (*Challenge, error) {
	if token == "" {
		return nil, common.ErrChallengeMissing
	}
	claims := &ChallengeClaims{}
	if err := parseToken(token, claims, b.secret, challengeAudience, b.now); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrChallengeMissing, err)
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: wrong ceremony %q", common.ErrChallengeMissing, claims.Kind)
	}
	if claims.Challenge == "" {
		return nil, fmt.Errorf("%w: empty challenge", common.ErrChallengeMissing)
	}
	return &Challenge{
		Kind:       claims.Kind,
		Email:      claims.Email,
		UserHandle: claims.UserHandle,
		Challenge:  claims.Challenge,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}
