package config

import (
	"flag"
	"os"

	"github.com/HijjazD/CryptoVote/internal/flagx"
)

var serverFlags = []string{
	"-a", "-g", "-d", "-s", "-t", "-l",
	"-rp-id", "-rp-name", "-rp-origins", "-client-url", "-email-domain",
}

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string          HTTP bind address (e.g. ":5000")
//	-g string          gRPC health bind address
//	-d string          PostgreSQL DSN, empty for the in-memory store
//	-s string          token signing secret
//	-t duration        session lifetime (e.g. "168h")
//	-l string          log level
//	-rp-id string      WebAuthn relying party id
//	-rp-name string    WebAuthn relying party display name
//	-rp-origins list   comma separated allowed origins
//	-client-url string frontend base URL used in emailed links
//	-email-domain str  suffix appended to matric numbers
//
// Only the flags above are considered; os.Args is filtered with
// flagx.FilterArgs first.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.GRPCHealthAddr, "g", config.GRPCHealthAddr, "address and port for the gRPC health endpoint")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.DurationVar(&config.SessionTTL, "t", config.SessionTTL, "session validity duration")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.RPID, "rp-id", config.RPID, "WebAuthn relying party id")
	fs.StringVar(&config.RPDisplayName, "rp-name", config.RPDisplayName, "WebAuthn relying party name")
	origins := flagx.StringList(config.RPOrigins)
	fs.Var(&origins, "rp-origins", "allowed WebAuthn origins, comma separated")
	fs.StringVar(&config.ClientURL, "client-url", config.ClientURL, "frontend base URL")
	fs.StringVar(&config.EmailDomain, "email-domain", config.EmailDomain, "email domain suffix")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.RPOrigins = origins
}
