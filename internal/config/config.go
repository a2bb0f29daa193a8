// Package config содержит логику чтения конфигурации сервиса онбординга.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса онбординга.
type Config struct {
	RunAddress       string `env:"RUN_ADDRESS"`
	DatabaseURI      string `env:"DATABASE_URI"`
	GatewayAddress   string `env:"GATEWAY_ADDRESS"`
	GatewaySecretKey string `env:"GATEWAY_SECRET_KEY"`
	WebhookSecret    string `env:"WEBHOOK_SECRET"`
	PaymentAmount    int64  `env:"PAYMENT_AMOUNT"`
	PaymentCurrency  string `env:"PAYMENT_CURRENCY"`
	PaymentLink      string `env:"PAYMENT_LINK"`
	TraderLink       string `env:"TRADER_LINK"`
	GroupLink        string `env:"GROUP_LINK"`
	FallbackMatching bool   `env:"FALLBACK_MATCHING"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envGatewayAddress := cfg.GatewayAddress
	envGatewaySecretKey := cfg.GatewaySecretKey
	envWebhookSecret := cfg.WebhookSecret
	envPaymentAmount := cfg.PaymentAmount
	envPaymentCurrency := cfg.PaymentCurrency
	envPaymentLink := cfg.PaymentLink
	envTraderLink := cfg.TraderLink
	envGroupLink := cfg.GroupLink
	envFallbackMatching := cfg.FallbackMatching

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.GatewayAddress, "g", "https://api.korapay.com", "payment gateway address")
	flag.StringVar(&cfg.GatewaySecretKey, "k", "", "payment gateway secret key")
	flag.StringVar(&cfg.WebhookSecret, "w", "", "webhook signature secret")
	flag.Int64Var(&cfg.PaymentAmount, "amount", 2000000, "expected payment amount in kobo")
	flag.StringVar(&cfg.PaymentCurrency, "currency", "NGN", "expected payment currency")
	flag.StringVar(&cfg.PaymentLink, "payment-link", "", "gateway payment page link")
	flag.StringVar(&cfg.TraderLink, "trader-link", "", "trading account link issued after signing")
	flag.StringVar(&cfg.GroupLink, "group-link", "", "private community link issued after signing")
	flag.BoolVar(&cfg.FallbackMatching, "fallback", false, "enable last-pending fallback matching of webhook references")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envGatewayAddress != "" {
		cfg.GatewayAddress = envGatewayAddress
	}
	if envGatewaySecretKey != "" {
		cfg.GatewaySecretKey = envGatewaySecretKey
	}
	if envWebhookSecret != "" {
		cfg.WebhookSecret = envWebhookSecret
	}
	if envPaymentAmount != 0 {
		cfg.PaymentAmount = envPaymentAmount
	}
	if envPaymentCurrency != "" {
		cfg.PaymentCurrency = envPaymentCurrency
	}
	if envPaymentLink != "" {
		cfg.PaymentLink = envPaymentLink
	}
	if envTraderLink != "" {
		cfg.TraderLink = envTraderLink
	}
	if envGroupLink != "" {
		cfg.GroupLink = envGroupLink
	}
	if envFallbackMatching {
		cfg.FallbackMatching = true
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
