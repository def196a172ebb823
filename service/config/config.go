package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// MainnetGenesisHash is the genesis hash of the Solana mainnet-beta cluster.
// A build must never proceed against any other cluster unless the operator
// explicitly overrides EXPECTED_GENESIS_HASH.
const MainnetGenesisHash = "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdpKuc147dw2N9d"

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration. Optional: when empty the service uses the
	// in-memory cache store instead of Postgres.
	DatabaseURL string

	// NATS configuration. Optional: when empty no build events are published.
	NATSURL string

	// Solana configuration
	SolanaRPCURL        string
	ExpectedGenesisHash string

	// Fee payer configuration
	FeePayerKeypairFile string

	// Routing service (Jupiter-style quote API) configuration
	RoutingBaseURL string

	// Swap build configuration
	PlatformFeeBps  int
	SlippageBps     int
	SameMintTimeout time.Duration

	// FeeSchedulePath points at a JSON fee schedule file. Optional: when
	// empty no per-asset burn/transfer fees apply.
	FeeSchedulePath string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Optional backing services
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Solana configuration
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}
	cfg.ExpectedGenesisHash = getEnvOrDefault("EXPECTED_GENESIS_HASH", MainnetGenesisHash)

	// Fee payer keypair
	cfg.FeePayerKeypairFile = os.Getenv("FEE_PAYER_KEYPAIR_FILE")
	if cfg.FeePayerKeypairFile == "" {
		errs = append(errs, fmt.Errorf("FEE_PAYER_KEYPAIR_FILE is required"))
	}

	// Routing service
	cfg.RoutingBaseURL = getEnvOrDefault("ROUTING_BASE_URL", "https://quote-api.jup.ag/v6")

	// Swap build parameters
	platformFeeBps, err := parseInt("PLATFORM_FEE_BPS", 0)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PlatformFeeBps = platformFeeBps
	}

	slippageBps, err := parseInt("SLIPPAGE_BPS", 50)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SlippageBps = slippageBps
	}

	sameMintTimeout, err := parseDuration("SAME_MINT_TIMEOUT", "3s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SameMintTimeout = sameMintTimeout
	}

	cfg.FeeSchedulePath = os.Getenv("FEE_SCHEDULE_PATH")

	if err := cfg.validateBounds(); err != nil {
		errs = append(errs, err)
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.ExpectedGenesisHash == "" {
		errs = append(errs, fmt.Errorf("ExpectedGenesisHash is required"))
	}

	if c.FeePayerKeypairFile == "" {
		errs = append(errs, fmt.Errorf("FeePayerKeypairFile is required"))
	}

	if c.RoutingBaseURL == "" {
		errs = append(errs, fmt.Errorf("RoutingBaseURL is required"))
	}

	if err := c.validateBounds(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// validateBounds checks numeric configuration against sane limits.
func (c *Config) validateBounds() error {
	var errs []error

	if c.PlatformFeeBps < 0 || c.PlatformFeeBps > 10000 {
		errs = append(errs, fmt.Errorf("PLATFORM_FEE_BPS must be between 0 and 10000, got %d", c.PlatformFeeBps))
	}

	if c.SlippageBps < 0 || c.SlippageBps > 10000 {
		errs = append(errs, fmt.Errorf("SLIPPAGE_BPS must be between 0 and 10000, got %d", c.SlippageBps))
	}

	if c.SameMintTimeout < 0 {
		errs = append(errs, fmt.Errorf("SAME_MINT_TIMEOUT cannot be negative, got %v", c.SameMintTimeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%v", errs)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
