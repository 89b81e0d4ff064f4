// Package server wires the CryptoVote auth server: storage, token issuers,
// mail and faucet collaborators, the WebAuthn relying party, and the HTTP
// and gRPC health listeners. It also handles graceful shutdown.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/HijjazD/CryptoVote/internal/logging"
	"github.com/HijjazD/CryptoVote/internal/server/auth"
	"github.com/HijjazD/CryptoVote/internal/server/config"
	"github.com/HijjazD/CryptoVote/internal/server/faucet"
	"github.com/HijjazD/CryptoVote/internal/server/httpapi"
	"github.com/HijjazD/CryptoVote/internal/server/mailer"
	"github.com/HijjazD/CryptoVote/internal/server/metrics"
	"github.com/HijjazD/CryptoVote/internal/server/repositories/repomanager"
	"github.com/HijjazD/CryptoVote/internal/server/services"
	"github.com/HijjazD/CryptoVote/internal/server/tokens"

	gs "github.com/HijjazD/CryptoVote/internal/server/grpc"
)

// App owns every long-lived component of the server.
type App struct {
	config   *config.Config
	logger   logging.Logger
	repos    repomanager.RepositoryManager
	http     *httpapi.Server
	health   *gs.HealthServer
	accounts *services.AccountService
	passkeys *services.PasskeyService
}

// NewApp builds the server from c and logs JSON to stdout.
func NewApp(c *config.Config) (*App, error) {
	return newApp(c, logging.NewJSONLogger(os.Stdout, c.LogLevel))
}

func newApp(c *config.Config, logger logging.Logger) (*App, error) {

	if err := checkSecret(c.SecretKey); err != nil {
		return nil, err
	}

	rm, err := repomanager.New(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if c.DatabaseDSN == "" {
		logger.Warn(context.Background(), "no database configured, using in-memory storage")
	}

	sessions := auth.NewSessionIssuer(c.SecretKey, c.SessionTTL, nil)
	challenges := auth.NewChallengeBinder(c.SecretKey, c.ChallengeTTL, nil)

	mail := mailer.New(newMailSender(c, logger), c.MailFrom)

	transferer, err := newTransferer(c)
	if err != nil {
		_ = rm.Close()
		return nil, err
	}
	var claims faucet.Transferer
	if transferer == nil {
		logger.Warn(context.Background(), "faucet not configured, token claims are disabled")
	} else {
		logger.Info(context.Background(), "faucet configured", "from", transferer.From())
		claims = transferer
	}

	rp, err := services.NewRelyingParty(c)
	if err != nil {
		_ = rm.Close()
		return nil, fmt.Errorf("webauthn init error: %w", err)
	}

	accounts := services.NewAccountService(rm.Identities(), tokens.NewIssuer(nil), sessions, mail, claims, c, logger)
	passkeys := services.NewPasskeyService(rm.Identities(), rp, challenges, sessions, logger)

	httpServer := httpapi.NewServer(httpapi.Options{
		Address:       c.HTTPAddr,
		SecureCookies: c.SecureCookies,
		SessionTTL:    c.SessionTTL,
		ChallengeTTL:  c.ChallengeTTL,
		CORSOrigins:   c.CORSOrigins,
		RatePerMinute: c.RateLimitPerMinute,
		RateBurst:     c.RateLimitBurst,
	}, accounts, passkeys, sessions, metrics.New(), logger)

	return &App{
		config:   c,
		logger:   logger,
		repos:    rm,
		http:     httpServer,
		health:   gs.NewHealthServer(c.GRPCHealthAddr, rm, 0, logger),
		accounts: accounts,
		passkeys: passkeys,
	}, nil
}

// newMailSender delivers over SMTP when a host is configured and logs the
// messages otherwise.
func newMailSender(c *config.Config, logger logging.Logger) mailer.Sender {
	if c.SMTPHost == "" {
		return mailer.NewLogSender(logger)
	}
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUser,
		Password: c.SMTPPassword,
	})
}

// checkSecret rejects a missing or short signing secret.
func checkSecret(secret string) error {
	if len(secret) < config.MinSecretKeyLength {
		return fmt.Errorf("secret key must be at least %d bytes, set %sSECRET_KEY or -s",
			config.MinSecretKeyLength, config.EnvPrefix)
	}
	return nil
}

// newTransferer returns nil when no faucet endpoint is set.
func newTransferer(c *config.Config) (*faucet.Client, error) {
	if c.FaucetRPCURL == "" {
		return nil, nil
	}
	client, err := faucet.Dial(context.Background(), faucet.Config{
		RPCURL:     c.FaucetRPCURL,
		PrivateKey: c.FaucetPrivateKey,
		AmountWei:  c.FaucetAmountWei,
	})
	if err != nil {
		return nil, fmt.Errorf("faucet init error: %w", err)
	}
	return client, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.http.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.health.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run applies migrations and serves until ctx is cancelled, a signal
// arrives, or a listener fails.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	if err := app.repos.RunMigrations(ctx); err != nil {
		_ = app.repos.Close()
		return fmt.Errorf("migrations: %w", err)
	}

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.logger.Info(context.Background(), "App stopped")
	return app.repos.Close()
}
