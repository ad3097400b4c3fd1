package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

const (
	// Balancer vault on Polygon
	DefaultVault   = "0xBA12222222228d8Ba445958a75a0704d566BF2C8"
	DefaultVersion = "1.03"

	LenderBalancer = "balancer"
	LenderAave     = "aave"

	defaultConfigName = ".flashctl.yaml"
)

type Config struct {
	Network   NetworkConfig   `yaml:"network"`
	Contract  ContractConfig  `yaml:"contract"`
	Lender    LenderConfig    `yaml:"lender"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
	Debug     bool            `yaml:"debug"`

	// Internal components
	Logger *zap.Logger `yaml:"-"`
}

type NetworkConfig struct {
	Name         string        `yaml:"name"`          // polygon, hardhat
	RPCEndpoint  string        `yaml:"rpc_endpoint"`  // websocket or http endpoint of the live network
	ForkEndpoint string        `yaml:"fork_endpoint"` // endpoint of a local fork
	ChainID      int64         `yaml:"chain_id"`
	Timeout      time.Duration `yaml:"timeout"`
}

type ContractConfig struct {
	Address string `yaml:"address"` // deployed controller, empty until deployed
	Vault   string `yaml:"vault"`
	Version string `yaml:"version"`
}

type LenderConfig struct {
	Kind   string `yaml:"kind"`
	FeeBps uint64 `yaml:"fee_bps"` // In basis points (1 = 0.01%)
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size"`
	WaitTimeout       time.Duration `yaml:"wait_timeout"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	Namespace  string `yaml:"namespace"`
}

type LogConfig struct {
	Format string `yaml:"format"` // json or console
	File   string `yaml:"file"`   // optional file receiving a copy of stdout
}

type SecureConfig struct {
	PrivateKey string
}

func (c *Config) ValidateConfig() error {
	var errors []string

	if c.Network.ChainID <= 0 {
		errors = append(errors, "chain_id must be positive")
	}
	if c.Network.Timeout <= 0 {
		errors = append(errors, "network timeout must be positive")
	}

	if !common.IsHexAddress(c.Contract.Vault) {
		errors = append(errors, fmt.Sprintf("vault %q is not an address", c.Contract.Vault))
	} else if common.HexToAddress(c.Contract.Vault) == (common.Address{}) {
		errors = append(errors, "vault must not be the zero address")
	}
	if c.Contract.Version == "" {
		errors = append(errors, "version must be specified")
	}
	if c.Contract.Address != "" && !common.IsHexAddress(c.Contract.Address) {
		errors = append(errors, fmt.Sprintf("contract address %q is not an address", c.Contract.Address))
	}

	if err := c.Lender.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("lender error: %v", err))
	}
	if err := c.RateLimit.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("RPC rate limit error: %v", err))
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		errors = append(errors, "metrics listen_addr must be specified when metrics are enabled")
	}

	switch c.Log.Format {
	case "", "json", "console":
	default:
		errors = append(errors, fmt.Sprintf("unsupported log format %q", c.Log.Format))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (l *LenderConfig) Validate() error {
	switch l.Kind {
	case LenderBalancer, LenderAave:
	default:
		return fmt.Errorf("unsupported lender kind %q", l.Kind)
	}
	if l.FeeBps >= 10_000 {
		return fmt.Errorf("fee must be below 10000 basis points")
	}
	return nil
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}
	if r.WaitTimeout <= 0 {
		return fmt.Errorf("wait timeout must be positive")
	}

	return nil
}

// VaultAddress returns the configured lending vault.
func (c *Config) VaultAddress() common.Address {
	return common.HexToAddress(c.Contract.Vault)
}

// ContractAddress returns the deployed controller or an error when none is configured.
func (c *Config) ContractAddress() (common.Address, error) {
	if c.Contract.Address == "" {
		return common.Address{}, fmt.Errorf("no controller address configured, set %s", EnvContract)
	}
	if !common.IsHexAddress(c.Contract.Address) {
		return common.Address{}, fmt.Errorf("invalid controller address %q", c.Contract.Address)
	}
	return common.HexToAddress(c.Contract.Address), nil
}

// Endpoint returns the JSON-RPC endpoint of the selected network.
func (c *Config) Endpoint() (string, error) {
	endpoint := c.Network.RPCEndpoint
	if c.Network.Name == NetworkHardhat {
		endpoint = c.Network.ForkEndpoint
	}
	if endpoint == "" {
		return "", fmt.Errorf("no endpoint configured for network %s", c.Network.Name)
	}
	return endpoint, nil
}

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, defaultConfigName), nil
}

// LoadConfig reads cfgFile on top of the defaults, applies environment
// overrides and validates the result. A missing default config file is not an
// error; a missing explicit one is.
func LoadConfig(cfgFile string) (*Config, error) {
	explicit := cfgFile != ""
	if !explicit {
		path, err := defaultConfigPath()
		if err != nil {
			return nil, err
		}
		cfgFile = path
	}

	config := DefaultConfig()
	data, err := os.ReadFile(cfgFile)
	switch {
	case err == nil:
		if err := yaml.UnmarshalStrict(data, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	ApplyEnv(config)

	// Validate configuration
	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}

	return config, nil
}

func LoadSecureConfig() (*SecureConfig, error) {
	privateKey, err := GetRequiredEnv(EnvPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("private key not found: %w", err)
	}

	return &SecureConfig{
		PrivateKey: strings.TrimPrefix(privateKey, "0x"),
	}, nil
}

func SaveConfig(cfg *Config, cfgFile string) error {
	if cfgFile == "" {
		path, err := defaultConfigPath()
		if err != nil {
			return err
		}
		cfgFile = path
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(cfgFile, data, 0o600)
}

func DefaultConfig() *Config {
	return &Config{
		Logger: zap.NewNop(),
		Network: NetworkConfig{
			Name:         NetworkPolygon,
			RPCEndpoint:  "",
			ForkEndpoint: "http://127.0.0.1:8545",
			ChainID:      137,
			Timeout:      30 * time.Second,
		},
		Contract: ContractConfig{
			Vault:   DefaultVault,
			Version: DefaultVersion,
		},
		Lender: LenderConfig{
			Kind:   LenderBalancer,
			FeeBps: 0,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstSize:         20,
			WaitTimeout:       5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9090",
			Namespace:  "flashctl",
		},
		Log: LogConfig{
			Format: "json",
		},
	}
}
