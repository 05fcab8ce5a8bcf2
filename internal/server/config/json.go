package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/toolmeter/internal/flagx"
	"github.com/dmitrijs2005/toolmeter/internal/server/plans"
	"github.com/dmitrijs2005/toolmeter/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "90s" and integer nanoseconds are accepted.
// Absent keys leave the current value untouched.
type JsonConfig struct {
	HTTPAddr                     string         `json:"http_addr"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	Env                          string         `json:"env"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	RazorpayKeyID                string         `json:"razorpay_key_id"`
	RazorpayKeySecret            string         `json:"razorpay_key_secret"`
	RazorpayBaseURL              string         `json:"razorpay_base_url"`
	GatewayTimeout               timex.Duration `json:"gateway_timeout"`
	LLMServiceURL                string         `json:"llm_service_url"`
	LLMTimeout                   timex.Duration `json:"llm_timeout"`
	RestockAllowance             *int64         `json:"restock_allowance"`
	SignupMessageAllowance       *int64         `json:"signup_message_allowance"`
	SignupSendAllowance          *int64         `json:"signup_send_allowance"`
	Plans                        []plans.Plan   `json:"plans"`
	PublicMetrics                *bool          `json:"public_metrics"`
	RateLimitPerMinute           int            `json:"rate_limit_per_minute"`
	TrustedProxies               []string       `json:"trusted_proxies"`
	ShutdownTimeout              timex.Duration `json:"shutdown_timeout"`
	DBPingInterval               timex.Duration `json:"db_ping_interval"`
}

// parseJson overlays values from the file named by -c/-config (or
// $TOOLMETER_CONFIG). Nothing happens when no file is configured.
func parseJson(config *Config) error {
	path := flagx.ConfigFilePath()
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.Env, c.Env)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setString(&config.RazorpayKeyID, c.RazorpayKeyID)
	setString(&config.RazorpayKeySecret, c.RazorpayKeySecret)
	setString(&config.RazorpayBaseURL, c.RazorpayBaseURL)
	setDuration(&config.GatewayTimeout, c.GatewayTimeout)
	setString(&config.LLMServiceURL, c.LLMServiceURL)
	setDuration(&config.LLMTimeout, c.LLMTimeout)
	setDuration(&config.ShutdownTimeout, c.ShutdownTimeout)
	setDuration(&config.DBPingInterval, c.DBPingInterval)

	if c.RestockAllowance != nil {
		config.RestockAllowance = *c.RestockAllowance
	}
	if c.SignupMessageAllowance != nil {
		config.SignupMessageAllowance = *c.SignupMessageAllowance
	}
	if c.SignupSendAllowance != nil {
		config.SignupSendAllowance = *c.SignupSendAllowance
	}
	if len(c.Plans) > 0 {
		config.Plans = c.Plans
	}
	if c.PublicMetrics != nil {
		config.PublicMetrics = *c.PublicMetrics
	}
	if c.RateLimitPerMinute > 0 {
		config.RateLimitPerMinute = c.RateLimitPerMinute
	}
	if c.TrustedProxies != nil {
		config.TrustedProxies = c.TrustedProxies
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
