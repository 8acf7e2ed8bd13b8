package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mr-tron/base58"

	"github.com/validatorlabs/solana-validator-exporter/pkg/price"
	"github.com/validatorlabs/solana-validator-exporter/pkg/slog"
)

// ExporterConfig is read once from the environment at startup and never
// mutated afterwards. Empty identity/vote keys are a normal operating mode
// that disables the metrics depending on them.
type ExporterConfig struct {
	RpcUrl         string        `env:"SOLANA_RPC_URL" envDefault:"https://api.mainnet-beta.solana.com"`
	LocalRpcUrl    string        `env:"SOLANA_LOCAL_RPC_URL"`
	IdentityKey    string        `env:"SOLANA_IDENTITY_KEY"`
	VoteKey        string        `env:"SOLANA_VOTE_KEY"`
	HttpTimeout    time.Duration `env:"SOLANA_RPC_TIMEOUT" envDefault:"10s"`
	MaxConnections int           `env:"SOLANA_MAX_CONNECTIONS" envDefault:"20"`
	ListenAddress  string        `env:"LISTEN_ADDRESS" envDefault:":8080"`
	PriceApiUrl    string        `env:"PRICE_API_URL"`
}

func NewExporterConfigFromEnv() (*ExporterConfig, error) {
	logger := slog.Get()

	var config ExporterConfig
	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}
	if config.PriceApiUrl == "" {
		config.PriceApiUrl = price.DefaultQuoteUrl
	}

	if err := validatePubkey("SOLANA_IDENTITY_KEY", config.IdentityKey); err != nil {
		return nil, err
	}
	if err := validatePubkey("SOLANA_VOTE_KEY", config.VoteKey); err != nil {
		return nil, err
	}
	if config.HttpTimeout <= 0 {
		return nil, fmt.Errorf("SOLANA_RPC_TIMEOUT must be positive, got %v", config.HttpTimeout)
	}
	if config.MaxConnections <= 0 {
		return nil, fmt.Errorf("SOLANA_MAX_CONNECTIONS must be positive, got %d", config.MaxConnections)
	}

	if config.IdentityKey == "" {
		logger.Warn("SOLANA_IDENTITY_KEY not set - identity-scoped metrics will be unavailable")
	}
	if config.VoteKey == "" {
		logger.Warn("SOLANA_VOTE_KEY not set - vote-scoped metrics will be unavailable")
	}
	if config.LocalRpcUrl == "" {
		logger.Info("SOLANA_LOCAL_RPC_URL not set - local health checks disabled")
	}

	logger.Infow(
		"Setting up exporter config with",
		"rpcUrl", config.RpcUrl,
		"localRpcUrl", orDisabled(config.LocalRpcUrl),
		"identityKey", orDisabled(config.IdentityKey),
		"voteKey", orDisabled(config.VoteKey),
		"httpTimeout", config.HttpTimeout,
		"maxConnections", config.MaxConnections,
		"listenAddress", config.ListenAddress,
	)
	return &config, nil
}

// validatePubkey rejects values which are set but are not valid base58
// encodings of 32 bytes. Unset values are fine.
func validatePubkey(name, value string) error {
	if value == "" {
		return nil
	}
	decoded, err := base58.Decode(value)
	if err != nil {
		return fmt.Errorf("%s is not valid base58: %w", name, err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("%s must decode to 32 bytes, got %d", name, len(decoded))
	}
	return nil
}

func orDisabled(value string) string {
	if value == "" {
		return "disabled"
	}
	return value
}
