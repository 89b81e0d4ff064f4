// Package auth signs and verifies the two capability tokens the server hands
// to browsers: the long-lived session token and the short-lived passkey
// challenge token. Both are HS256 JWTs keyed with the server secret and are
// told apart by audience.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/HijjazD/CryptoVote/internal/common"
	"github.com/HijjazD/CryptoVote/internal/timex"
	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionAudience   = "cryptovote-session"
	challengeAudience = "cryptovote-challenge"
)

// Claims is the session payload: registered claims plus the identity id.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

// SessionIssuer mints and checks session tokens.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	now    timex.Clock
}

// NewSessionIssuer signs HS256 session tokens with secret that expire after
// ttl. A nil now uses time.Now.
func NewSessionIssuer(secret string, ttl time.Duration, now timex.Clock) *SessionIssuer {
	if now == nil {
		now = time.Now
	}
	return &SessionIssuer{secret: []byte(secret), ttl: ttl, now: now}
}

// TTL is the session lifetime, also used as the cookie Max-Age.
func (s *SessionIssuer) TTL() time.Duration { return s.ttl }

// Issue returns a signed token carrying only identityID.
func (s *SessionIssuer) Issue(identityID string) (string, error) {
	now := s.now()
	return signToken(s.secret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{sessionAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		UserID: identityID,
	})
}

// Verify returns the identity id of a valid token. Every failure wraps
// common.ErrorUnauthorized; expired tokens also match common.ErrTokenExpired.
func (s *SessionIssuer) Verify(token string) (string, error) {
	if token == "" {
		return "", common.ErrorUnauthorized
	}
	claims := &Claims{}
	if err := parseToken(token, claims, s.secret, sessionAudience, s.now); err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrorUnauthorized, err)
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("%w: %w", common.ErrorUnauthorized, common.ErrInvalidToken)
	}
	return claims.UserID, nil
}

func signToken(secret []byte, claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// parseToken checks signature, algorithm, audience and expiry in one pass.
func parseToken(tokenString string, claims jwt.Claims, secret []byte, audience string, now timex.Clock) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid {
		return common.ErrInvalidToken
	}
	return nil
}
