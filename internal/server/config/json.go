package config

import (
	"encoding/json"
	"os"

	"github.com/HijjazD/CryptoVote/internal/flagx"
	"github.com/HijjazD/CryptoVote/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// "90s"-style strings or integer nanoseconds. Pointer fields distinguish
// "absent" from zero so a partial file only overrides what it names.
type JsonConfig struct {
	HTTPAddr       *string `json:"http_addr"`
	GRPCHealthAddr *string `json:"grpc_health_addr"`
	DatabaseDSN    *string `json:"database_dsn"`
	LogLevel       *string `json:"log_level"`

	SecretKey     *string         `json:"secret_key"`
	SessionTTL    *timex.Duration `json:"session_ttl"`
	ChallengeTTL  *timex.Duration `json:"challenge_ttl"`
	SecureCookies *bool           `json:"secure_cookies"`

	RPID          *string  `json:"rp_id"`
	RPDisplayName *string  `json:"rp_name"`
	RPOrigins     []string `json:"rp_origins"`

	ClientURL   *string  `json:"client_url"`
	CORSOrigins []string `json:"cors_origins"`
	EmailDomain *string  `json:"email_domain"`

	SMTPHost     *string `json:"smtp_host"`
	SMTPPort     *int    `json:"smtp_port"`
	SMTPUser     *string `json:"smtp_user"`
	SMTPPassword *string `json:"smtp_password"`
	MailFrom     *string `json:"mail_from"`

	FaucetRPCURL     *string `json:"faucet_rpc_url"`
	FaucetPrivateKey *string `json:"faucet_private_key"`
	FaucetAmountWei  *string `json:"faucet_amount_wei"`

	RateLimitPerMinute *int `json:"rate_limit_per_minute"`
	RateLimitBurst     *int `json:"rate_limit_burst"`
}

// parseJson loads the file named by -c/-config, if any, into config.
// An unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	set(&config.HTTPAddr, c.HTTPAddr)
	set(&config.GRPCHealthAddr, c.GRPCHealthAddr)
	set(&config.DatabaseDSN, c.DatabaseDSN)
	set(&config.LogLevel, c.LogLevel)
	set(&config.SecretKey, c.SecretKey)
	if c.SessionTTL != nil {
		config.SessionTTL = c.SessionTTL.Duration
	}
	if c.ChallengeTTL != nil {
		config.ChallengeTTL = c.ChallengeTTL.Duration
	}
	set(&config.SecureCookies, c.SecureCookies)
	set(&config.RPID, c.RPID)
	set(&config.RPDisplayName, c.RPDisplayName)
	if c.RPOrigins != nil {
		config.RPOrigins = c.RPOrigins
	}
	set(&config.ClientURL, c.ClientURL)
	if c.CORSOrigins != nil {
		config.CORSOrigins = c.CORSOrigins
	}
	set(&config.EmailDomain, c.EmailDomain)
	set(&config.SMTPHost, c.SMTPHost)
	set(&config.SMTPPort, c.SMTPPort)
	set(&config.SMTPUser, c.SMTPUser)
	set(&config.SMTPPassword, c.SMTPPassword)
	set(&config.MailFrom, c.MailFrom)
	set(&config.FaucetRPCURL, c.FaucetRPCURL)
	set(&config.FaucetPrivateKey, c.FaucetPrivateKey)
	set(&config.FaucetAmountWei, c.FaucetAmountWei)
	set(&config.RateLimitPerMinute, c.RateLimitPerMinute)
	set(&config.RateLimitBurst, c.RateLimitBurst)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
