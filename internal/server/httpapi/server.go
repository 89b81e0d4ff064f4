// Package httpapi exposes the account and passkey services over JSON HTTP
// under /api/auth, together with /metrics and /healthz.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/HijjazD/CryptoVote/internal/logging"
	"github.com/HijjazD/CryptoVote/internal/server/metrics"
	"github.com/HijjazD/CryptoVote/internal/server/models"
	"github.com/HijjazD/CryptoVote/internal/server/services"
	"github.com/rs/cors"
)

const (
	apiPrefix = "/api/auth"

	maxBodyBytes = 64 << 10

	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 120 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Accounts is the account lifecycle used by the handlers.
type Accounts interface {
	Signup(ctx context.Context, matric string) (*models.Identity, error)
	ResendVerification(ctx context.Context, matric string) error
	VerifyEmail(ctx context.Context, code string) (*services.VerifyEmailResult, error)
	SetPassword(ctx context.Context, token, password string) (*models.Identity, error)
	ResetPassword(ctx context.Context, token, password string) (*models.Identity, bool, error)
	Login(ctx context.Context, matric, password string) (*services.LoginResult, error)
	ForgotPassword(ctx context.Context, matric string) error
	CurrentIdentity(ctx context.Context, id string) (*models.Identity, error)
	ConfirmVote(ctx context.Context, id string) (*models.Identity, bool, error)
	ClaimToken(ctx context.Context, id, address string) (string, error)
}

// Passkeys runs the two WebAuthn ceremonies.
type Passkeys interface {
	InitRegistration(ctx context.Context, setupToken string) (*services.RegistrationStart, error)
	VerifyRegistration(ctx context.Context, challengeToken string, body []byte) (*models.Identity, error)
	InitAuthentication(ctx context.Context, matric string) (*services.AuthenticationStart, error)
	VerifyAuthentication(ctx context.Context, challengeToken string, body []byte) (*services.LoginResult, error)
}

// SessionVerifier resolves a session token to an identity id.
type SessionVerifier interface {
	Verify(token string) (string, error)
}

// Options configures the HTTP surface.
type Options struct {
	Address        string
	SecureCookies  bool
	SessionTTL     time.Duration
	ChallengeTTL   time.Duration
	CORSOrigins    []string
	RatePerMinute  int
	RateBurst      int
	RateLimiterTTL time.Duration
}

// Server is the JSON API under /api/auth.
type Server struct {
	opts     Options
	accounts Accounts
	passkeys Passkeys
	sessions SessionVerifier
	metrics  *metrics.Metrics
	limiter  *RateLimiter
	logger   logging.Logger
	cookies  cookieJar
}

// NewServer wires the routes. A nil logger is replaced with logging.Nop.
func NewServer(opts Options, accounts Accounts, passkeys Passkeys, sessions SessionVerifier, m *metrics.Metrics, l logging.Logger) *Server {
	if l == nil {
		l = logging.Nop{}
	}
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		opts:     opts,
		accounts: accounts,
		passkeys: passkeys,
		sessions: sessions,
		metrics:  m,
		limiter:  NewRateLimiter(opts.RatePerMinute, opts.RateBurst, opts.RateLimiterTTL),
		logger:   l.With("module", "http_server"),
		cookies: cookieJar{
			secure:       opts.SecureCookies,
			sessionTTL:   opts.SessionTTL,
			challengeTTL: opts.ChallengeTTL,
		},
	}
}

// Handler returns the root handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(s.recoverer(mux))
}

// Run serves on opts.Address until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {

	listen, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.opts.Address)

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
