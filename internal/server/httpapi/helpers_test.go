package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/HijjazD/CryptoVote/internal/logging"
	"github.com/HijjazD/CryptoVote/internal/server/auth"
	"github.com/HijjazD/CryptoVote/internal/server/config"
	"github.com/HijjazD/CryptoVote/internal/server/metrics"
	"github.com/HijjazD/CryptoVote/internal/server/models"
	"github.com/HijjazD/CryptoVote/internal/server/repositories/identities"
	"github.com/HijjazD/CryptoVote/internal/server/services"
	"github.com/HijjazD/CryptoVote/internal/server/tokens"
	"github.com/stretchr/testify/require"
)

const testSecret = "http-test-secret"

type recordingMailer struct {
	mu  sync.Mutex
	err error

	codes map[string]string
	links map[string]string
	votes []string
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{codes: map[string]string{}, links: map[string]string{}}
}

func (m *recordingMailer) SendVerification(_ context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.codes[to] = code
	return nil
}

func (m *recordingMailer) SendWelcome(context.Context, string, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.links[to] = link
	return nil
}

func (m *recordingMailer) SendResetSuccess(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *recordingMailer) SendVoteConfirmation(_ context.Context, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.votes = append(m.votes, to)
	return nil
}

func (m *recordingMailer) code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

type stubFaucet struct {
	hash string
	err  error
}

func (f stubFaucet) Send(context.Context, string) (string, error) {
	return f.hash, f.err
}

// testServer is the HTTP surface over real services and the memory store.
type testServer struct {
	t       *testing.T
	cfg     *config.Config
	store   *identities.MemoryStore
	mail    *recordingMailer
	metrics *metrics.Metrics
	server  *Server
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = testSecret
	cfg.SecureCookies = false
	cfg.RateLimitPerMinute = 0

	store := identities.NewMemoryStore()
	mail := newRecordingMailer()
	sessions := auth.NewSessionIssuer(cfg.SecretKey, cfg.SessionTTL, nil)
	challenges := auth.NewChallengeBinder(cfg.SecretKey, cfg.ChallengeTTL, nil)

	accounts := services.NewAccountService(store, tokens.NewIssuer(nil), sessions, mail,
		stubFaucet{hash: "0xabc123"}, cfg, logging.Nop{})

	wa, err := services.NewRelyingParty(cfg)
	require.NoError(t, err)
	passkeys := services.NewPasskeyService(store, wa, challenges, sessions, logging.Nop{})

	m := metrics.New()
	srv := NewServer(testOptions(cfg), accounts, passkeys, sessions, m, logging.Nop{})

	return &testServer{
		t:       t,
		cfg:     cfg,
		store:   store,
		mail:    mail,
		metrics: m,
		server:  srv,
		handler: srv.Handler(),
	}
}

func testOptions(cfg *config.Config) Options {
	return Options{
		SecureCookies: cfg.SecureCookies,
		SessionTTL:    cfg.SessionTTL,
		ChallengeTTL:  cfg.ChallengeTTL,
		CORSOrigins:   cfg.CORSOrigins,
		RatePerMinute: cfg.RateLimitPerMinute,
		RateBurst:     cfg.RateLimitBurst,
	}
}

func (ts *testServer) do(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	ts.t.Helper()
	return serve(ts.t, ts.handler, method, path, body, cookies...)
}

func serve(t *testing.T, h http.Handler, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	case []byte:
		buf.Write(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// signupAndVerify runs signup and verify-email for matric and returns the
// setup token and the session cookie.
func (ts *testServer) signupAndVerify(matric string) (string, *http.Cookie) {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/auth/signup", map[string]string{"studentMatric": matric})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())

	code := ts.mail.code(models.EmailFor(strings.ToUpper(matric), ts.cfg.EmailDomain))
	require.NotEmpty(ts.t, code)

	rec = ts.do(http.MethodPost, "/api/auth/verify-email", map[string]string{"verificationCode": code})
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(ts.t, rec)
	token, _ := body["setupToken"].(string)
	require.NotEmpty(ts.t, token)

	session := findCookie(rec, sessionCookieName)
	require.NotNil(ts.t, session)
	return token, session
}

// register creates an identity with a password and returns its session.
func (ts *testServer) register(matric, password string) *http.Cookie {
	ts.t.Helper()
	token, session := ts.signupAndVerify(matric)
	rec := ts.do(http.MethodPost, "/api/auth/save-pass", map[string]string{"token": token, "password": password})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return session
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// unreachableAccounts panics on any call. Gate tests use it to show a
// handler never ran.
type unreachableAccounts struct{ Accounts }

type unreachablePasskeys struct{ Passkeys }

type fixedSessions struct {
	id  string
	err error
}

func (f fixedSessions) Verify(string) (string, error) { return f.id, f.err }
