package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Facilitator backend modes.
const (
	ModeHTTP    = "http"
	ModeOnchain = "onchain"
)

type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	Payment     PaymentConfig
	Facilitator FacilitatorConfig
	Chain       ChainConfig
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type PaymentConfig struct {
	Amount       string `mapstructure:"amount"` // decimal units, e.g. "2.00"
	Token        string `mapstructure:"token"`
	Network      string `mapstructure:"network"` // CAIP-2
	Asset        string `mapstructure:"asset"`
	AssetName    string `mapstructure:"asset_name"`
	AssetVersion string `mapstructure:"asset_version"`
	PayTo        string `mapstructure:"pay_to"`
	Recipient    string `mapstructure:"recipient"`
	Description  string `mapstructure:"description"`
}

type FacilitatorConfig struct {
	Mode             string `mapstructure:"mode"` // http | onchain
	URL              string `mapstructure:"url"`
	APIKey           string `mapstructure:"api_key"`
	TimeoutSec       int64  `mapstructure:"timeout_sec"`
	MinConfirmations uint64 `mapstructure:"min_confirmations"`
}

type ChainConfig struct {
	RPCURL string `mapstructure:"rpc_url"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults: USDC on Base.
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("payment.token", "USDC")
	v.SetDefault("payment.network", "eip155:8453")
	v.SetDefault("payment.asset", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	v.SetDefault("payment.asset_name", "USD Coin")
	v.SetDefault("payment.asset_version", "2")
	v.SetDefault("facilitator.mode", ModeHTTP)
	v.SetDefault("facilitator.url", "https://api.onchain.fi")
	v.SetDefault("facilitator.timeout_sec", 30)
	v.SetDefault("facilitator.min_confirmations", 2)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"server.port":                   "PORT",
		"redis.addr":                    "REDIS_ADDR",
		"redis.password":                "REDIS_PASSWORD",
		"payment.amount":                "PAYMENT_AMOUNT",
		"payment.token":                 "PAYMENT_TOKEN",
		"payment.network":               "PAYMENT_NETWORK",
		"payment.asset":                 "PAYMENT_ASSET",
		"payment.asset_name":            "PAYMENT_ASSET_NAME",
		"payment.asset_version":         "PAYMENT_ASSET_VERSION",
		"payment.pay_to":                "PAYMENT_PAY_TO",
		"payment.recipient":             "PAYMENT_RECIPIENT",
		"payment.description":           "PAYMENT_DESCRIPTION",
		"facilitator.mode":              "FACILITATOR_MODE",
		"facilitator.url":               "FACILITATOR_URL",
		"facilitator.api_key":           "FACILITATOR_API_KEY",
		"facilitator.timeout_sec":       "FACILITATOR_TIMEOUT_SEC",
		"facilitator.min_confirmations": "MIN_CONFIRMATIONS",
		"chain.rpc_url":                 "RPC_URL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

// validate fails fast before serving traffic: a gate with no recipient or
// no reachable settlement path must not start.
func (c *Config) validate() error {
	type req struct {
		val  string
		name string
	}
	required := []req{
		{c.Payment.Amount, "PAYMENT_AMOUNT"},
		{c.Payment.Recipient, "PAYMENT_RECIPIENT"},
		{c.Payment.PayTo, "PAYMENT_PAY_TO"},
	}
	switch c.Facilitator.Mode {
	case ModeHTTP:
		required = append(required, req{c.Facilitator.URL, "FACILITATOR_URL"})
	case ModeOnchain:
		required = append(required, req{c.Chain.RPCURL, "RPC_URL"})
	default:
		return fmt.Errorf("invalid FACILITATOR_MODE %q (want %s or %s)", c.Facilitator.Mode, ModeHTTP, ModeOnchain)
	}
	for _, r := range required {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
	}
	return nil
}
