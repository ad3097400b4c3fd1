package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvEthersEndpoint  = "ETHERS_ENDPOINT"
	EnvHardhatEndpoint = "HARDHAT_ENDPOINT"
	EnvPrivateKey      = "PRIVATE_KEY"
	EnvContract        = "FLASHLOAN_CONTRACT"
	EnvNetwork         = "NETWORK" // polygon, hardhat
	EnvChainID         = "CHAIN_ID"
)

const (
	NetworkPolygon = "polygon"
	NetworkHardhat = "hardhat"
)

// LoadEnv loads environment variables from .env files. Missing files are
// ignored; variables already set win.
func LoadEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	var existing []string
	for _, name := range filenames {
		if _, err := os.Stat(name); err == nil {
			existing = append(existing, name)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with whatever the environment sets.
func ApplyEnv(cfg *Config) {
	cfg.Network.Name = GetEnvWithDefault(EnvNetwork, cfg.Network.Name)
	cfg.Network.RPCEndpoint = GetEnvWithDefault(EnvEthersEndpoint, cfg.Network.RPCEndpoint)
	cfg.Network.ForkEndpoint = GetEnvWithDefault(EnvHardhatEndpoint, cfg.Network.ForkEndpoint)
	cfg.Contract.Address = GetEnvWithDefault(EnvContract, cfg.Contract.Address)

	if raw := os.Getenv(EnvChainID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			// left for ValidateConfig to reject
			id = 0
		}
		cfg.Network.ChainID = id
	}
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s not set", key)
	}
	return value, nil
}
