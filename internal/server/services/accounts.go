// Package services contains server-side business logic. AccountService owns
// the token lifecycle of an identity (signup, email verification, password
// set/reset, login) and the post-login account actions. PasskeyService runs
// the WebAuthn ceremonies.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/HijjazD/CryptoVote/internal/common"
	"github.com/HijjazD/CryptoVote/internal/logging"
	"github.com/HijjazD/CryptoVote/internal/server/auth"
	"github.com/HijjazD/CryptoVote/internal/server/config"
	"github.com/HijjazD/CryptoVote/internal/server/faucet"
	"github.com/HijjazD/CryptoVote/internal/server/mailer"
	"github.com/HijjazD/CryptoVote/internal/server/models"
	"github.com/HijjazD/CryptoVote/internal/server/repositories/identities"
	"github.com/HijjazD/CryptoVote/internal/server/tokens"
	"github.com/HijjazD/CryptoVote/internal/timex"
	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost = 10

	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes
	maxPasswordLength = 72

	// tokenAttempts bounds reissuing after a token collision.
	tokenAttempts = 3
)

var (
	matricRe = regexp.MustCompile(`^[A-Z0-9]{4,20}$`)
	codeRe   = regexp.MustCompile(`^[0-9]{6}$`)

	dummyHash = sync.OnceValue(func() []byte {
		h, err := bcrypt.GenerateFromPassword([]byte("cryptovote-timing-equalizer"), bcryptCost)
		if err != nil {
			panic(err)
		}
		return h
	})
)

// Session is an issued session token and its expiry.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// VerifyEmailResult is returned after a verification code is consumed. The
// setup token authorizes either save-pass or passkey registration.
type VerifyEmailResult struct {
	Identity       *models.Identity
	SetupToken     string
	Session        Session
	EmailDelivered bool
}

// LoginResult carries the identity and the freshly issued session.
type LoginResult struct {
	Identity *models.Identity
	Session  Session
}

// AccountService owns the password and email side of an identity: signup,
// verification codes, setup and reset tokens, password login and the
// post-vote actions.
type AccountService struct {
	store    identities.Store
	tokens   *tokens.Issuer
	sessions *auth.SessionIssuer
	mail     mailer.Mailer
	faucet   faucet.Transferer
	log      logging.Logger
	now      timex.Clock

	emailDomain string
	clientURL   string
}

// NewAccountService wires the account lifecycle. faucet may be nil, in which
// case ClaimToken reports a downstream failure.
func NewAccountService(
	store identities.Store,
	issuer *tokens.Issuer,
	sessions *auth.SessionIssuer,
	mail mailer.Mailer,
	transferer faucet.Transferer,
	cfg *config.Config,
	log logging.Logger,
) *AccountService {
	if log == nil {
		log = logging.Nop{}
	}
	return &AccountService{
		store:       store,
		tokens:      issuer,
		sessions:    sessions,
		mail:        mail,
		faucet:      transferer,
		log:         log.With("module", "accounts"),
		now:         time.Now,
		emailDomain: cfg.EmailDomain,
		clientURL:   strings.TrimRight(cfg.ClientURL, "/"),
	}
}

// NormalizeMatric trims and upper-cases a matriculation number and checks
// its shape.
func NormalizeMatric(matric string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(matric))
	if m == "" {
		return "", common.NewValidationError("studentMatric", "matric number is required")
	}
	if !matricRe.MatchString(m) {
		return "", common.NewValidationError("studentMatric", "matric number must be 4-20 letters or digits")
	}
	return m, nil
}

func validatePassword(password string) error {
	switch {
	case password == "":
		return common.NewValidationError("password", "password is required")
	case len(password) < minPasswordLength:
		return common.NewValidationError("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	case len(password) > maxPasswordLength:
		return common.NewValidationError("password", fmt.Sprintf("password must be at most %d bytes", maxPasswordLength))
	}
	return nil
}

func downstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", common.ErrDownstream, op, err)
}

// Signup creates an unverified identity, replacing an abandoned unverified
// one, and emails its verification code. When the email cannot be sent the
// identity stays in place and the error wraps common.ErrDownstream.
func (s *AccountService) Signup(ctx context.Context, matric string) (*models.Identity, error) {
	matric, err := NormalizeMatric(matric)
	if err != nil {
		return nil, err
	}

	var created *models.Identity
	for attempt := 0; attempt < tokenAttempts && created == nil; attempt++ {
		code, expiresAt, err := s.tokens.IssueVerificationCode()
		if err != nil {
			return nil, err
		}
		created, err = s.store.Create(ctx, &models.Identity{
			Matric:                     matric,
			Email:                      models.EmailFor(matric, s.emailDomain),
			VerificationToken:          code,
			VerificationTokenExpiresAt: expiresAt,
		})
		if errors.Is(err, common.ErrTokenCollision) {
			s.log.Warn(ctx, "verification code collision, reissuing", "attempt", attempt+1)
			continue
		}
		if err != nil {
			if errors.Is(err, common.ErrAlreadyExists) {
				return nil, common.ErrAlreadyExists
			}
			return nil, fmt.Errorf("create identity: %w", err)
		}
	}
	if created == nil {
		return nil, fmt.Errorf("create identity: %w", common.ErrTokenCollision)
	}

	s.log.Info(ctx, "identity created", "identity_id", created.ID)

	if err := s.mail.SendVerification(ctx, created.Email, created.VerificationToken); err != nil {
		s.log.Error(ctx, "verification email failed", "identity_id", created.ID, "error", err)
		return nil, downstream("send verification email", err)
	}
	return created, nil
}

// ResendVerification emails the live code of an unverified identity, or a
// fresh one when the previous code has expired.
func (s *AccountService) ResendVerification(ctx context.Context, matric string) error {
	matric, err := NormalizeMatric(matric)
	if err != nil {
		return err
	}
	identity, err := s.findByMatric(ctx, matric)
	if err != nil {
		return err
	}
	if identity.EmailVerified {
		return common.NewValidationError("studentMatric", "email is already verified")
	}

	if !identity.VerificationTokenExpiresAt.After(s.now()) {
		err := s.saveWithNewToken(ctx, identity, func(i *models.Identity) error {
			code, expiresAt, err := s.tokens.IssueVerificationCode()
			if err != nil {
				return err
			}
			i.VerificationToken, i.VerificationTokenExpiresAt = code, expiresAt
			return nil
		})
		if err != nil {
			return err
		}
	}

	if err := s.mail.SendVerification(ctx, identity.Email, identity.VerificationToken); err != nil {
		s.log.Error(ctx, "verification email failed", "identity_id", identity.ID, "error", err)
		return downstream("send verification email", err)
	}
	return nil
}

// VerifyEmail consumes a verification code, marks the email verified,
// issues a setup token and a session, and sends the welcome email.
func (s *AccountService) VerifyEmail(ctx context.Context, code string) (*VerifyEmailResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, common.NewValidationError("verificationCode", "verification code is required")
	}
	if !codeRe.MatchString(code) {
		return nil, common.ErrInvalidOrExpiredToken
	}

	identity, err := s.store.FindByVerificationToken(ctx, code, s.now())
	if err != nil {
		return nil, tokenLookupError(err)
	}

	identity.EmailVerified = true
	identity.ClearVerificationToken()
	err = s.saveWithNewToken(ctx, identity, func(i *models.Identity) error {
		token, expiresAt, err := s.tokens.IssueResetToken()
		if err != nil {
			return err
		}
		i.ResetToken, i.ResetTokenExpiresAt = token, expiresAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	session, err := s.issueSession(identity.ID)
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "email verified", "identity_id", identity.ID)

	delivered := true
	if err := s.mail.SendWelcome(ctx, identity.Email, identity.Matric); err != nil {
		s.log.Warn(ctx, "welcome email failed", "identity_id", identity.ID, "error", err)
		delivered = false
	}

	return &VerifyEmailResult{
		Identity:       identity,
		SetupToken:     identity.ResetToken,
		Session:        session,
		EmailDelivered: delivered,
	}, nil
}

// SetPassword consumes a live setup or reset token and stores the bcrypt
// hash of password.
func (s *AccountService) SetPassword(ctx context.Context, token, password string) (*models.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, common.NewValidationError("token", "token is required")
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	identity, err := s.store.FindByResetToken(ctx, token, s.now())
	if err != nil {
		return nil, tokenLookupError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	identity.PasswordHash = hash
	identity.ClearResetToken()
	if err := s.store.Save(ctx, identity); err != nil {
		return nil, fmt.Errorf("save identity: %w", err)
	}

	s.log.Info(ctx, "password set", "identity_id", identity.ID)
	return identity, nil
}

// ResetPassword is SetPassword followed by a confirmation email. The
// returned flag reports whether that email went out.
func (s *AccountService) ResetPassword(ctx context.Context, token, password string) (*models.Identity, bool, error) {
	identity, err := s.SetPassword(ctx, token, password)
	if err != nil {
		return nil, false, err
	}
	if err := s.mail.SendResetSuccess(ctx, identity.Email); err != nil {
		s.log.Warn(ctx, "reset confirmation email failed", "identity_id", identity.ID, "error", err)
		return identity, false, nil
	}
	return identity, true, nil
}

// Login checks a password. Unknown matric numbers, identities without a
// password and wrong passwords all return common.ErrInvalidCredentials
// after a bcrypt comparison.
func (s *AccountService) Login(ctx context.Context, matric, password string) (*LoginResult, error) {
	matric = strings.ToUpper(strings.TrimSpace(matric))
	if matric == "" {
		return nil, common.NewValidationError("studentMatric", "matric number is required")
	}
	if password == "" {
		return nil, common.NewValidationError("password", "password is required")
	}

	identity, err := s.store.FindByMatric(ctx, matric)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("find identity: %w", err)
	}
	if identity == nil || !identity.HasPassword() {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return nil, common.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(identity.PasswordHash, []byte(password)); err != nil {
		return nil, common.ErrInvalidCredentials
	}

	identity.LastLogin = s.now()
	if err := s.store.Save(ctx, identity); err != nil {
		return nil, fmt.Errorf("save identity: %w", err)
	}

	session, err := s.issueSession(identity.ID)
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "password login", "identity_id", identity.ID)
	return &LoginResult{Identity: identity, Session: session}, nil
}

// ForgotPassword overwrites any reset token and emails a single-use link.
func (s *AccountService) ForgotPassword(ctx context.Context, matric string) error {
	matric, err := NormalizeMatric(matric)
	if err != nil {
		return err
	}
	identity, err := s.findByMatric(ctx, matric)
	if err != nil {
		return err
	}

	err = s.saveWithNewToken(ctx, identity, func(i *models.Identity) error {
		token, expiresAt, err := s.tokens.IssueResetToken()
		if err != nil {
			return err
		}
		i.ResetToken, i.ResetTokenExpiresAt = token, expiresAt
		return nil
	})
	if err != nil {
		return err
	}

	link := s.clientURL + "/reset-password/" + identity.ResetToken
	if err := s.mail.SendPasswordReset(ctx, identity.Email, link); err != nil {
		s.log.Error(ctx, "reset email failed", "identity_id", identity.ID, "error", err)
		return downstream("send reset email", err)
	}
	return nil
}

// CurrentIdentity returns the identity a session belongs to.
func (s *AccountService) CurrentIdentity(ctx context.Context, id string) (*models.Identity, error) {
	identity, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return identity, nil
}

// ConfirmVote records that the identity has voted and sends a confirmation
// email. The returned flag reports whether that email went out.
func (s *AccountService) ConfirmVote(ctx context.Context, id string) (*models.Identity, bool, error) {
	identity, err := s.CurrentIdentity(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !identity.HasVoted {
		identity.HasVoted = true
		if err := s.store.Save(ctx, identity); err != nil {
			return nil, false, fmt.Errorf("save identity: %w", err)
		}
	}

	if err := s.mail.SendVoteConfirmation(ctx, identity.Email); err != nil {
		s.log.Warn(ctx, "vote confirmation email failed", "identity_id", identity.ID, "error", err)
		return identity, false, nil
	}
	return identity, true, nil
}

// ClaimToken sends the faucet amount to address once per identity. The claim
// is recorded before the transfer so concurrent requests cannot both pay
// out. A transfer that certainly did not happen releases the claim and the
// recorded address; one that was broadcast but not confirmed keeps both.
func (s *AccountService) ClaimToken(ctx context.Context, id, address string) (string, error) {
	address = strings.TrimSpace(address)
	if !faucet.ValidAddress(address) {
		return "", common.NewValidationError("address", "invalid recipient address")
	}
	if s.faucet == nil {
		return "", downstream("faucet", errors.New("faucet is not configured"))
	}

	identity, err := s.CurrentIdentity(ctx, id)
	if err != nil {
		return "", err
	}
	if identity.HasClaim {
		return "", common.ErrAlreadyClaimed
	}

	previousAddress := identity.PublicAddress
	identity.HasClaim = true
	identity.PublicAddress = address
	if err := s.store.Save(ctx, identity); err != nil {
		if errors.Is(err, common.ErrVersionConflict) {
			return "", common.ErrAlreadyClaimed
		}
		return "", fmt.Errorf("save identity: %w", err)
	}

	txHash, err := s.faucet.Send(ctx, address)
	if err != nil {
		if txHash != "" {
			s.log.Error(ctx, "faucet transfer unconfirmed, claim kept", "identity_id", identity.ID, "tx", txHash, "error", err)
			return "", downstream("faucet transfer", err)
		}
		s.log.Error(ctx, "faucet transfer failed", "identity_id", identity.ID, "error", err)
		identity.HasClaim = false
		identity.PublicAddress = previousAddress
		if serr := s.store.Save(ctx, identity); serr != nil {
			s.log.Error(ctx, "release faucet claim failed", "identity_id", identity.ID, "error", serr)
		}
		return "", downstream("faucet transfer", err)
	}

	s.log.Info(ctx, "faucet transfer mined", "identity_id", identity.ID, "tx", txHash)
	return txHash, nil
}

func (s *AccountService) findByMatric(ctx context.Context, matric string) (*models.Identity, error) {
	identity, err := s.store.FindByMatric(ctx, matric)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return identity, nil
}

// saveWithNewToken applies issue and saves, reissuing when the new token
// collides with one held by another identity.
func (s *AccountService) saveWithNewToken(ctx context.Context, identity *models.Identity, issue func(*models.Identity) error) error {
	for attempt := 0; attempt < tokenAttempts; attempt++ {
		if err := issue(identity); err != nil {
			return err
		}
		err := s.store.Save(ctx, identity)
		if errors.Is(err, common.ErrTokenCollision) {
			s.log.Warn(ctx, "token collision, reissuing", "identity_id", identity.ID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return fmt.Errorf("save identity: %w", err)
		}
		return nil
	}
	return fmt.Errorf("save identity: %w", common.ErrTokenCollision)
}

func (s *AccountService) issueSession(identityID string) (Session, error) {
	token, err := s.sessions.Issue(identityID)
	if err != nil {
		return Session{}, fmt.Errorf("issue session: %w", err)
	}
	return Session{Token: token, ExpiresAt: s.now().Add(s.sessions.TTL())}, nil
}

func tokenLookupError(err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrInvalidOrExpiredToken
	}
	return fmt.Errorf("find identity by token: %w", err)
}
