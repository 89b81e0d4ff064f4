// Package config handles configuration for the server: defaults, an
// optional JSON file, CRYPTOVOTE_* environment variables and command-line
// flags, applied in that order.
package config

import "time"

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "CRYPTOVOTE_"

// Config holds runtime settings for the CryptoVote auth server.
//
// SecretKey signs both session and challenge tokens and has no default; the
// server refuses to start without one of at least MinSecretKeyLength bytes.
// RPID must be the registrable domain the browser sees; RPOrigins lists the
// exact origins (scheme://host[:port]) allowed to complete a passkey
// ceremony. An empty DatabaseDSN selects the in-memory store, an empty
// SMTPHost logs emails instead of sending them, and an empty FaucetRPCURL
// disables /claim-token.
type Config struct {
	HTTPAddr       string `env:"HTTP_ADDR"`
	GRPCHealthAddr string `env:"GRPC_HEALTH_ADDR"`
	DatabaseDSN    string `env:"DATABASE_DSN"`
	LogLevel       string `env:"LOG_LEVEL"`

	SecretKey     string        `env:"SECRET_KEY"`
	SessionTTL    time.Duration `env:"SESSION_TTL"`
	ChallengeTTL  time.Duration `env:"CHALLENGE_TTL"`
	SecureCookies bool          `env:"SECURE_COOKIES"`

	RPID          string   `env:"RP_ID"`
	RPDisplayName string   `env:"RP_NAME"`
	RPOrigins     []string `env:"RP_ORIGINS" envSeparator:","`

	ClientURL   string   `env:"CLIENT_URL"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
	EmailDomain string   `env:"EMAIL_DOMAIN"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM"`

	FaucetRPCURL     string `env:"FAUCET_RPC_URL"`
	FaucetPrivateKey string `env:"FAUCET_PRIVATE_KEY"`
	FaucetAmountWei  string `env:"FAUCET_AMOUNT_WEI"`

	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE"`
	RateLimitBurst     int `env:"RATE_LIMIT_BURST"`
}

// MinSecretKeyLength is the shortest accepted SecretKey, 256 bits for HS256.
const MinSecretKeyLength = 32

// LoadDefaults populates Config with development defaults. SecretKey is
// left empty and must be supplied.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":5000"
	c.GRPCHealthAddr = ":50051"
	c.DatabaseDSN = ""
	c.LogLevel = "info"
	c.SessionTTL = 7 * 24 * time.Hour
	c.ChallengeTTL = 60 * time.Second
	c.SecureCookies = true
	c.RPID = "localhost"
	c.RPDisplayName = "CryptoVote"
	c.RPOrigins = []string{"http://localhost:5173"}
	c.ClientURL = "http://localhost:5173"
	c.CORSOrigins = []string{"http://localhost:5173"}
	c.EmailDomain = "@student.uthm.edu.my"
	c.SMTPPort = 587
	c.MailFrom = "CryptoVote <noreply@cryptovote.local>"
	c.FaucetAmountWei = "500000000000000000000"
	c.RateLimitPerMinute = 10
	c.RateLimitBurst = 5
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment and finally command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
