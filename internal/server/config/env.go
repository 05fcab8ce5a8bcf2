package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names. LLM_TIMEOUT is in milliseconds.
const (
	EnvHTTPAddr          = "HTTP_ADDR"
	EnvDatabaseURL       = "DATABASE_URL"
	EnvJWTSecret         = "JWT_ACCESS_SECRET"
	EnvAppEnv            = "APP_ENV"
	EnvRazorpayKeyID     = "RAZORPAY_KEY_ID"
	EnvRazorpayKeySecret = "RAZORPAY_KEY_SECRET"
	EnvRazorpayBaseURL   = "RAZORPAY_BASE_URL"
	EnvLLMServiceURL     = "LLM_SERVICE_URL"
	EnvLLMTimeout        = "LLM_TIMEOUT"
	EnvRestockAllowance  = "RESTOCK_ALLOWANCE"
	EnvPublicMetrics     = "PUBLIC_METRICS"
	EnvTrustedProxies    = "TRUSTED_PROXIES"
)

// dotenvFiles are loaded before the process environment is read. Variables
// already set in the process win over the file.
var dotenvFiles = []string{".env"}

func parseEnv(config *Config) error {
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}

	lookupString(EnvHTTPAddr, &config.HTTPAddr)
	lookupString(EnvDatabaseURL, &config.DatabaseDSN)
	lookupString(EnvJWTSecret, &config.SecretKey)
	lookupString(EnvAppEnv, &config.Env)
	lookupString(EnvRazorpayKeyID, &config.RazorpayKeyID)
	lookupString(EnvRazorpayKeySecret, &config.RazorpayKeySecret)
	lookupString(EnvRazorpayBaseURL, &config.RazorpayBaseURL)
	lookupString(EnvLLMServiceURL, &config.LLMServiceURL)

	if v, ok := lookup(EnvLLMTimeout); ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ms <= 0 {
			return fmt.Errorf("%s: invalid milliseconds %q", EnvLLMTimeout, v)
		}
		config.LLMTimeout = time.Duration(ms) * time.Millisecond
	}
	if v, ok := lookup(EnvRestockAllowance); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRestockAllowance, err)
		}
		config.RestockAllowance = n
	}
	if v, ok := lookup(EnvTrustedProxies); ok {
		config.TrustedProxies = strings.Split(v, ",")
	}
	if v, ok := lookup(EnvPublicMetrics); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPublicMetrics, err)
		}
		config.PublicMetrics = b
	}
	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func lookupString(name string, dst *string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}
