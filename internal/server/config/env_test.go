package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_parseEnv(t *testing.T) {
	t.Run("overrides set variables", func(t *testing.T) {
		t.Setenv("CRYPTOVOTE_DATABASE_DSN", "postgres://db")
		t.Setenv("CRYPTOVOTE_SESSION_TTL", "2h")
		t.Setenv("CRYPTOVOTE_RP_ORIGINS", "https://a.example,https://b.example")
		t.Setenv("CRYPTOVOTE_SECURE_COOKIES", "false")
		t.Setenv("CRYPTOVOTE_RATE_LIMIT_BURST", "9")

		cfg := &Config{}
		cfg.LoadDefaults()
		parseEnv(cfg)

		assert.Equal(t, "postgres://db", cfg.DatabaseDSN)
		assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.RPOrigins)
		assert.False(t, cfg.SecureCookies)
		assert.Equal(t, 9, cfg.RateLimitBurst)
	})

	t.Run("unset variables keep previous values", func(t *testing.T) {
		cfg := &Config{HTTPAddr: ":1234", ChallengeTTL: time.Minute}
		parseEnv(cfg)

		assert.Equal(t, ":1234", cfg.HTTPAddr)
		assert.Equal(t, time.Minute, cfg.ChallengeTTL)
	})

	t.Run("malformed value panics", func(t *testing.T) {
		t.Setenv("CRYPTOVOTE_SMTP_PORT", "not-a-number")

		cfg := &Config{}
		require.Panics(t, func() { parseEnv(cfg) })
	})
}
