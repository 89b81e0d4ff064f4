package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/HijjazD/CryptoVote/internal/logging"
	"github.com/HijjazD/CryptoVote/internal/server/auth"
	"github.com/HijjazD/CryptoVote/internal/server/config"
	"github.com/HijjazD/CryptoVote/internal/server/repositories/identities"
	"github.com/HijjazD/CryptoVote/internal/server/tokens"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

const testSecret = "test-secret"

type fakeMailer struct {
	mu  sync.Mutex
	err error

	verifications map[string]string
	resetLinks    map[string]string
	welcomes      []string
	resetSuccess  []string
	votes         []string
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{verifications: map[string]string{}, resetLinks: map[string]string{}}
}

func (m *fakeMailer) SendVerification(_ context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.verifications[to] = code
	return nil
}

func (m *fakeMailer) SendWelcome(_ context.Context, to, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.welcomes = append(m.welcomes, to)
	return nil
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.resetLinks[to] = link
	return nil
}

func (m *fakeMailer) SendResetSuccess(_ context.Context, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.resetSuccess = append(m.resetSuccess, to)
	return nil
}

func (m *fakeMailer) SendVoteConfirmation(_ context.Context, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.votes = append(m.votes, to)
	return nil
}

type fakeFaucet struct {
	mu    sync.Mutex
	err   error
	hash  string
	sends []string
	// broadcast makes a failing Send report its hash, as for an unconfirmed
	// transaction.
	broadcast bool
}

func (f *fakeFaucet) Send(_ context.Context, to string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		if f.broadcast {
			return f.hash, f.err
		}
		return "", f.err
	}
	f.sends = append(f.sends, to)
	return f.hash, nil
}

type fakePasskeyProvider struct {
	credential           *webauthn.Credential
	createErr            error
	loginCredential      *webauthn.Credential
	validateErr          error
	beginRegistrationErr error
	beginLoginErr        error

	registrationUser webauthn.User
	loginSession     webauthn.SessionData
}

func (f *fakePasskeyProvider) BeginRegistration(user webauthn.User, _ ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	if f.beginRegistrationErr != nil {
		return nil, nil, f.beginRegistrationErr
	}
	f.registrationUser = user
	return &protocol.CredentialCreation{
			Response: protocol.PublicKeyCredentialCreationOptions{
				Challenge: protocol.URLEncodedBase64("registration-challenge-0123456789"),
				User: protocol.UserEntity{
					ID:          user.WebAuthnID(),
					DisplayName: user.WebAuthnDisplayName(),
					CredentialEntity: protocol.CredentialEntity{
						Name: user.WebAuthnName(),
					},
				},
			},
		}, &webauthn.SessionData{
			Challenge: "cmVnaXN0cmF0aW9uLWNoYWxsZW5nZQ",
			UserID:    user.WebAuthnID(),
		}, nil
}

func (f *fakePasskeyProvider) CreateCredential(_ webauthn.User, _ webauthn.SessionData, _ *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.credential, nil
}

func (f *fakePasskeyProvider) BeginLogin(user webauthn.User, _ ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	if f.beginLoginErr != nil {
		return nil, nil, f.beginLoginErr
	}
	var allowed []protocol.CredentialDescriptor
	for _, c := range user.WebAuthnCredentials() {
		allowed = append(allowed, c.Descriptor())
	}
	return &protocol.CredentialAssertion{
			Response: protocol.PublicKeyCredentialRequestOptions{
				Challenge:          protocol.URLEncodedBase64("login-challenge-0123456789abcdef"),
				AllowedCredentials: allowed,
			},
		}, &webauthn.SessionData{
			Challenge: "bG9naW4tY2hhbGxlbmdl",
			UserID:    user.WebAuthnID(),
		}, nil
}

func (f *fakePasskeyProvider) ValidateLogin(_ webauthn.User, session webauthn.SessionData, _ *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
	f.loginSession = session
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	return f.loginCredential, nil
}

type fakePasskeyParser struct {
	creation     *protocol.ParsedCredentialCreationData
	creationErr  error
	assertion    *protocol.ParsedCredentialAssertionData
	assertionErr error
}

func (f fakePasskeyParser) ParseCredentialCreationResponseBytes([]byte) (*protocol.ParsedCredentialCreationData, error) {
	return f.creation, f.creationErr
}

func (f fakePasskeyParser) ParseCredentialRequestResponseBytes([]byte) (*protocol.ParsedCredentialAssertionData, error) {
	return f.assertion, f.assertionErr
}

// testEnv wires the services over the memory store with a controllable
// clock.
type testEnv struct {
	now time.Time

	store      *identities.MemoryStore
	mail       *fakeMailer
	faucet     *fakeFaucet
	sessions   *auth.SessionIssuer
	challenges *auth.ChallengeBinder
	accounts   *AccountService
	cfg        *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		now:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		store:  identities.NewMemoryStore(),
		mail:   newFakeMailer(),
		faucet: &fakeFaucet{hash: "0xfeed"},
	}
	clock := func() time.Time { return env.now }

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.ClientURL = "https://vote.example/"
	env.cfg = cfg

	env.sessions = auth.NewSessionIssuer(testSecret, cfg.SessionTTL, clock)
	env.challenges = auth.NewChallengeBinder(testSecret, cfg.ChallengeTTL, clock)
	env.accounts = NewAccountService(env.store, tokens.NewIssuer(clock), env.sessions, env.mail, env.faucet, cfg, logging.Nop{})
	env.accounts.now = clock
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func (e *testEnv) passkeys(provider passkeyProvider, parser passkeyParser) *PasskeyService {
	s := newPasskeyService(e.store, provider, parser, e.challenges, e.sessions, logging.Nop{})
	s.now = func() time.Time { return e.now }
	return s
}
