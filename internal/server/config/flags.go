package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
)

// parseFlags overlays the short flags the server understands:
//
//	-a string     gRPC bind address (e.g. ":50051")
//	-d string     database DSN (postgres://... or sqlite:path)
//	-s string     token signing secret
//	-i string     token issuer
//	-t duration   token validity (e.g. "1h")
//	-l string     log level
//
// Other arguments are filtered out first so -c/-config and test runner flags
// do not trip the parser.
func parseFlags(cfg *Config, args []string) error {
	filtered := flagx.FilterArgs(args, []string{"-a", "-d", "-s", "-i", "-t", "-l"})

	fs := flag.NewFlagSet("gophauth", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.EndpointAddrGRPC, "a", cfg.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "token signing secret")
	fs.StringVar(&cfg.Issuer, "i", cfg.Issuer, "token issuer")
	fs.DurationVar(&cfg.AccessTokenValidityDuration, "t", cfg.AccessTokenValidityDuration, "token validity")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(filtered); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
