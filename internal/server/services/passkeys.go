package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HijjazD/CryptoVote/internal/common"
	"github.com/HijjazD/CryptoVote/internal/logging"
	"github.com/HijjazD/CryptoVote/internal/server/auth"
	"github.com/HijjazD/CryptoVote/internal/server/config"
	"github.com/HijjazD/CryptoVote/internal/server/models"
	"github.com/HijjazD/CryptoVote/internal/server/repositories/identities"
	"github.com/HijjazD/CryptoVote/internal/timex"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

type passkeyProvider interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
}

type passkeyParser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultPasskeyParser struct{}

func (defaultPasskeyParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultPasskeyParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// NewRelyingParty builds the WebAuthn relying party from config.
func NewRelyingParty(cfg *config.Config) (*webauthn.WebAuthn, error) {
	if cfg.RPID == "" {
		return nil, errors.New("webauthn config: relying party id is required")
	}
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn config: %w", err)
	}
	return wa, nil
}

// RegistrationStart is handed to the browser for navigator.credentials.create.
type RegistrationStart struct {
	Options            protocol.PublicKeyCredentialCreationOptions
	ChallengeToken     string
	ChallengeExpiresAt time.Time
}

// AuthenticationStart is handed to the browser for navigator.credentials.get.
type AuthenticationStart struct {
	Options            protocol.PublicKeyCredentialRequestOptions
	ChallengeToken     string
	ChallengeExpiresAt time.Time
}

// PasskeyService coordinates WebAuthn registration and authentication. The
// only state kept between the two steps of a ceremony is the signed
// challenge token returned by the Init* methods.
type PasskeyService struct {
	store      identities.Store
	provider   passkeyProvider
	parser     passkeyParser
	challenges *auth.ChallengeBinder
	sessions   *auth.SessionIssuer
	log        logging.Logger
	now        timex.Clock
}

// NewPasskeyService wires the ceremonies to a go-webauthn relying party.
// Credentials are parsed with the library's own protocol parsers.
func NewPasskeyService(
	store identities.Store,
	wa *webauthn.WebAuthn,
	challenges *auth.ChallengeBinder,
	sessions *auth.SessionIssuer,
	log logging.Logger,
) *PasskeyService {
	return newPasskeyService(store, wa, defaultPasskeyParser{}, challenges, sessions, log)
}

func newPasskeyService(
	store identities.Store,
	provider passkeyProvider,
	parser passkeyParser,
	challenges *auth.ChallengeBinder,
	sessions *auth.SessionIssuer,
	log logging.Logger,
) *PasskeyService {
	if log == nil {
		log = logging.Nop{}
	}
	return &PasskeyService{
		store:      store,
		provider:   provider,
		parser:     parser,
		challenges: challenges,
		sessions:   sessions,
		log:        log.With("module", "passkeys"),
		now:        time.Now,
	}
}

// InitRegistration starts a registration ceremony for the holder of a live
// setup token.
func (s *PasskeyService) InitRegistration(ctx context.Context, setupToken string) (*RegistrationStart, error) {
	setupToken = strings.TrimSpace(setupToken)
	if setupToken == "" {
		return nil, common.NewValidationError("token", "token is required")
	}

	identity, err := s.store.FindByResetToken(ctx, setupToken, s.now())
	if err != nil {
		return nil, tokenLookupError(err)
	}

	user := newPasskeyUser(identity)
	options := []webauthn.RegistrationOption{
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementPreferred,
			UserVerification: protocol.VerificationPreferred,
		}),
	}
	if len(user.credentials) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(user.credentials).CredentialDescriptors()))
	}

	creation, session, err := s.provider.BeginRegistration(user, options...)
	if err != nil {
		return nil, fmt.Errorf("begin passkey registration: %w", err)
	}

	token, expiresAt, err := s.challenges.Start(auth.Challenge{
		Kind:       common.CeremonyRegistration,
		Email:      identity.Email,
		UserHandle: identity.Matric,
		Challenge:  session.Challenge,
	})
	if err != nil {
		return nil, fmt.Errorf("bind challenge: %w", err)
	}

	s.log.Debug(ctx, "passkey registration started", "identity_id", identity.ID)
	return &RegistrationStart{Options: creation.Response, ChallengeToken: token, ChallengeExpiresAt: expiresAt}, nil
}

// VerifyRegistration checks an attestation against the bound challenge and
// appends the new credential to the identity. No session is issued.
func (s *PasskeyService) VerifyRegistration(ctx context.Context, challengeToken string, body []byte) (*models.Identity, error) {
	bound, err := s.challenges.Read(challengeToken, common.CeremonyRegistration)
	if err != nil {
		return nil, err
	}
	if err := requireCredential(body); err != nil {
		return nil, err
	}

	parsed, err := s.parser.ParseCredentialCreationResponseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse attestation: %w", common.ErrVerificationFailed, err)
	}

	user := &passkeyUser{
		handle:      []byte(bound.UserHandle),
		name:        bound.UserHandle,
		displayName: bound.Email,
	}
	session := webauthn.SessionData{
		Challenge:        bound.Challenge,
		UserID:           user.handle,
		Expires:          bound.ExpiresAt,
		UserVerification: protocol.VerificationPreferred,
		CredParams:       webauthn.CredentialParametersDefault(),
	}
	credential, err := s.provider.CreateCredential(user, session, parsed)
	if err != nil {
		s.log.Warn(ctx, "passkey attestation rejected", "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrVerificationFailed, err)
	}

	identity, err := s.store.FindByEmail(ctx, bound.Email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	if identity.Matric != bound.UserHandle {
		return nil, common.ErrIdentityNotFound
	}

	transports := make([]string, 0, len(parsed.Response.Transports))
	for _, t := range parsed.Response.Transports {
		transports = append(transports, string(t))
	}
	identity.AddCredential(fromWebAuthnCredential(credential, transports, s.now()))

	if err := s.store.Save(ctx, identity); err != nil {
		return nil, fmt.Errorf("save identity: %w", err)
	}

	s.log.Info(ctx, "passkey registered", "identity_id", identity.ID, "credentials", len(identity.Credentials))
	return identity, nil
}

// InitAuthentication starts an authentication ceremony scoped to the
// credentials bound to matric.
func (s *PasskeyService) InitAuthentication(ctx context.Context, matric string) (*AuthenticationStart, error) {
	matric = strings.ToUpper(strings.TrimSpace(matric))
	if matric == "" {
		return nil, common.NewValidationError("studentMatric", "matric number is required")
	}

	identity, err := s.store.FindByMatric(ctx, matric)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidHandle
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	if len(identity.Credentials) == 0 {
		return nil, common.ErrNoCredentials
	}

	user := newPasskeyUser(identity)
	assertion, session, err := s.provider.BeginLogin(user,
		webauthn.WithAllowedCredentials(webauthn.Credentials(user.credentials).CredentialDescriptors()),
		webauthn.WithUserVerification(protocol.VerificationPreferred),
	)
	if err != nil {
		return nil, fmt.Errorf("begin passkey login: %w", err)
	}

	token, expiresAt, err := s.challenges.Start(auth.Challenge{
		Kind:       common.CeremonyLogin,
		Email:      identity.Email,
		UserHandle: identity.ID,
		Challenge:  session.Challenge,
	})
	if err != nil {
		return nil, fmt.Errorf("bind challenge: %w", err)
	}

	s.log.Debug(ctx, "passkey authentication started", "identity_id", identity.ID)
	return &AuthenticationStart{Options: assertion.Response, ChallengeToken: token, ChallengeExpiresAt: expiresAt}, nil
}

// VerifyAuthentication checks an assertion against the bound challenge and
// the stored public key. The sign counter must advance unless both sides
// report zero. On success the counter and last login are saved and a
// session is issued.
func (s *PasskeyService) VerifyAuthentication(ctx context.Context, challengeToken string, body []byte) (*LoginResult, error) {
	bound, err := s.challenges.Read(challengeToken, common.CeremonyLogin)
	if err != nil {
		return nil, err
	}
	if err := requireCredential(body); err != nil {
		return nil, err
	}

	identity, err := s.store.FindByID(ctx, bound.UserHandle)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	if identity.Email != bound.Email {
		return nil, common.ErrIdentityNotFound
	}

	parsed, err := s.parser.ParseCredentialRequestResponseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse assertion: %w", common.ErrVerificationFailed, err)
	}

	stored, ok := identity.FindCredential(parsed.RawID)
	if !ok {
		return nil, common.ErrCredentialNotFound
	}

	user := newPasskeyUser(identity)
	session := webauthn.SessionData{
		Challenge:            bound.Challenge,
		UserID:               user.handle,
		AllowedCredentialIDs: credentialIDs(identity.Credentials),
		Expires:              bound.ExpiresAt,
		UserVerification:     protocol.VerificationPreferred,
	}
	credential, err := s.provider.ValidateLogin(user, session, parsed)
	if err != nil {
		s.log.Warn(ctx, "passkey assertion rejected", "identity_id", identity.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrVerificationFailed, err)
	}
	if credential.Authenticator.CloneWarning {
		s.log.Warn(ctx, "passkey sign counter did not advance", "identity_id", identity.ID,
			"stored", stored.SignCount)
		return nil, fmt.Errorf("%w: sign counter did not advance", common.ErrVerificationFailed)
	}

	stored.SignCount = credential.Authenticator.SignCount
	stored.BackedUp = credential.Flags.BackupState
	identity.LastLogin = s.now()
	if err := s.store.Save(ctx, identity); err != nil {
		return nil, fmt.Errorf("save identity: %w", err)
	}

	token, err := s.sessions.Issue(identity.ID)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	s.log.Info(ctx, "passkey login", "identity_id", identity.ID)
	return &LoginResult{
		Identity: identity,
		Session:  Session{Token: token, ExpiresAt: s.now().Add(s.sessions.TTL())},
	}, nil
}

// requireCredential runs after the challenge check so a missing challenge is
// reported first whatever the body holds.
func requireCredential(body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return common.NewValidationError("credential", "credential response is required")
	}
	return nil
}

// passkeyUser adapts an identity to webauthn.User. The user handle is the
// matric number.
type passkeyUser struct {
	handle      []byte
	name        string
	displayName string
	credentials []webauthn.Credential
}

func newPasskeyUser(identity *models.Identity) *passkeyUser {
	credentials := make([]webauthn.Credential, 0, len(identity.Credentials))
	for _, c := range identity.Credentials {
		credentials = append(credentials, toWebAuthnCredential(c))
	}
	return &passkeyUser{
		handle:      []byte(identity.Matric),
		name:        identity.Matric,
		displayName: identity.Email,
		credentials: credentials,
	}
}

func (u *passkeyUser) WebAuthnID() []byte {
	return u.handle
}

func (u *passkeyUser) WebAuthnName() string {
	return u.name
}

func (u *passkeyUser) WebAuthnDisplayName() string {
	return u.displayName
}

func (u *passkeyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

func toWebAuthnCredential(c models.PasskeyCredential) webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
	for _, t := range c.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}
	return webauthn.Credential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackedUp,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.SignCount,
		},
	}
}

func fromWebAuthnCredential(c *webauthn.Credential, transports []string, now time.Time) models.PasskeyCredential {
	deviceType := models.DeviceSingle
	if c.Flags.BackupEligible {
		deviceType = models.DeviceMulti
	}
	return models.PasskeyCredential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		SignCount:       c.Authenticator.SignCount,
		DeviceType:      deviceType,
		BackedUp:        c.Flags.BackupState,
		BackupEligible:  c.Flags.BackupEligible,
		Transports:      transports,
		AttestationType: c.AttestationType,
		AAGUID:          c.Authenticator.AAGUID,
		CreatedAt:       now,
	}
}

func credentialIDs(credentials []models.PasskeyCredential) [][]byte {
	ids := make([][]byte, 0, len(credentials))
	for _, c := range credentials {
		ids = append(ids, c.ID)
	}
	return ids
}
