package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/toolmeter/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-e string   environment ("dev" enables debug logs)
//	-k string   Razorpay key id
//	-w string   Razorpay key secret
//	-l string   LLM service URL
//
// os.Args is filtered with flagx.FilterArgs first so flags owned by other
// parsers (-c/-config) do not cause errors here.
func parseFlags(config *Config) error {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-r", "-e", "-k", "-w", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")

	fs.StringVar(&config.Env, "e", config.Env, "environment")
	fs.StringVar(&config.RazorpayKeyID, "k", config.RazorpayKeyID, "Razorpay key id")
	fs.StringVar(&config.RazorpayKeySecret, "w", config.RazorpayKeySecret, "Razorpay key secret")
	fs.StringVar(&config.LLMServiceURL, "l", config.LLMServiceURL, "LLM service URL")

	if err := fs.Parse(args); err != nil {
		return err
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
	return nil
}
