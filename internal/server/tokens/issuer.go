// Package tokens issues the short-lived single-use secrets of the account
// lifecycle: numeric email verification codes and hex reset/setup tokens.
package tokens

import (
	"fmt"
	"time"

	"github.com/HijjazD/CryptoVote/internal/common"
	"github.com/HijjazD/CryptoVote/internal/timex"
)

const (
	VerificationCodeDigits = 6
	VerificationCodeTTL    = 24 * time.Hour

	// ResetTokenBytes is the amount of randomness before hex encoding.
	ResetTokenBytes = 20
	ResetTokenTTL   = time.Hour
)

// Issuer generates tokens together with their expiry. It has no side effects.
type Issuer struct {
	now timex.Clock
}

// NewIssuer stamps expiries with now, or time.Now when nil.
func NewIssuer(now timex.Clock) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{now: now}
}

// IssueVerificationCode returns a 6-digit code valid for 24 hours.
func (i *Issuer) IssueVerificationCode() (string, time.Time, error) {
	code, err := common.MakeRandDigits(VerificationCodeDigits)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate verification code: %w", err)
	}
	return code, i.now().Add(VerificationCodeTTL), nil
}

// IssueResetToken returns a 40-character hex token valid for one hour.
func (i *Issuer) IssueResetToken() (string, time.Time, error) {
	token, err := common.MakeRandHexString(ResetTokenBytes)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate reset token: %w", err)
	}
	return token, i.now().Add(ResetTokenTTL), nil
}
