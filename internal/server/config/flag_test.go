package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{"cmd",
			"-a", "127.0.0.1:9090", "-g", ":6000", "-d", "db", "-s", "secret",
			"-t", "1h", "-l", "debug", "-rp-id", "vote.example", "-rp-name", "Vote",
			"-rp-origins", "https://vote.example, https://admin.vote.example",
			"-client-url", "https://vote.example", "-email-domain", "@uni.example",
		}, expectPanic: false,
			expected: &Config{
				HTTPAddr:       "127.0.0.1:9090",
				GRPCHealthAddr: ":6000",
				DatabaseDSN:    "db",
				SecretKey:      "secret",
				SessionTTL:     1 * time.Hour,
				LogLevel:       "debug",
				RPID:           "vote.example",
				RPDisplayName:  "Vote",
				RPOrigins:      []string{"https://vote.example", "https://admin.vote.example"},
				ClientURL:      "https://vote.example",
				EmailDomain:    "@uni.example",
			}},
		{name: "unknown flags are ignored", args: []string{"cmd", "-x", "1", "-a", ":80"},
			expected: &Config{HTTPAddr: ":80"}},
		{name: "bad duration panics", args: []string{"cmd", "-t", "soon"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
