package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/toolmeter/internal/flagx"
	"github.com/dmitrijs2005/toolmeter/internal/server/plans"
)

func writeTempJSON(t *testing.T, dir, name string, data any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	t.Setenv(flagx.ConfigFileEnv, "")

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"http_addr":                       "127.0.0.1:9000",
		"database_dsn":                    "postgres://db",
		"secret_key":                      "my_secret_key",
		"access_token_validity_duration":  "2m",
		"refresh_token_validity_duration": "3h",
		"razorpay_key_id":                 "rzp_test",
		"razorpay_key_secret":             "rzp_secret",
		"llm_timeout":                     "30s",
		"restock_allowance":               0,
		"public_metrics":                  true,
		"trusted_proxies":                 []string{"10.0.0.0/8"},
		"plans": []map[string]any{
			{"id": "starter", "name": "Starter", "amount": 99, "currency": "USD", "duration_days": 7, "message_allowance": 100, "send_allowance": 10},
		},
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJson(cfg))

		assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
		assert.Equal(t, "postgres://db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, 2*time.Minute, cfg.AccessTokenValidityDuration)
		assert.Equal(t, 3*time.Hour, cfg.RefreshTokenValidityDuration)
		assert.Equal(t, "rzp_test", cfg.RazorpayKeyID)
		assert.Equal(t, "rzp_secret", cfg.RazorpayKeySecret)
		assert.Equal(t, 30*time.Second, cfg.LLMTimeout)
		assert.Equal(t, int64(0), cfg.RestockAllowance)
		assert.True(t, cfg.PublicMetrics)
		assert.Equal(t, []string{"10.0.0.0/8"}, cfg.TrustedProxies)
		require.Len(t, cfg.Plans, 1)
		assert.Equal(t, "starter", cfg.Plans[0].ID)
	})

	t.Run("absent keys keep defaults", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", pathFlag}

		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJson(cfg))

		assert.Equal(t, "https://api.razorpay.com", cfg.RazorpayBaseURL)
		assert.Equal(t, 10*time.Second, cfg.GatewayTimeout)
		assert.Equal(t, int64(50), cfg.SignupMessageAllowance)
		assert.Equal(t, 120, cfg.RateLimitPerMinute)
	})

	t.Run("env var names the file", func(t *testing.T) {
		os.Args = []string{"testbin"}
		t.Setenv(flagx.ConfigFileEnv, pathFlag)

		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJson(cfg))
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
	})

	t.Run("no file configured", func(t *testing.T) {
		os.Args = []string{"testbin"}
		t.Setenv(flagx.ConfigFileEnv, "")

		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJson(cfg))
		assert.Equal(t, plans.Defaults(), cfg.Plans)
	})

	t.Run("missing file", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(dir, "nope.json")}
		require.Error(t, parseJson(&Config{}))
	})

	t.Run("malformed json", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
		os.Args = []string{"testbin", "-c", bad}
		require.Error(t, parseJson(&Config{}))
	})

	t.Run("bad duration", func(t *testing.T) {
		bad := writeTempJSON(t, dir, "dur.json", map[string]any{"llm_timeout": "soon"})
		os.Args = []string{"testbin", "-c", bad}
		require.Error(t, parseJson(&Config{}))
	})
}
