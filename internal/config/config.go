// Package config loads txexec configuration.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the single source of truth for txexec configuration.
// Priority: defaults < config file < environment variables < CLI flags
type Config struct {
	RPC      RPCConfig      `toml:"rpc"`
	Account  AccountConfig  `toml:"account"`
	Queue    QueueConfig    `toml:"queue"`
	Executor ExecutorConfig `toml:"executor"`
	Store    StoreConfig    `toml:"store"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// RPCConfig holds the node connection settings.
type RPCConfig struct {
	Endpoint string `toml:"endpoint"`
	// ChainID is checked against the node when non-zero
	ChainID             int64         `toml:"chain_id"`
	ReceiptPollInterval time.Duration `toml:"receipt_poll_interval"`
	GasRefreshInterval  time.Duration `toml:"gas_refresh_interval"`
}

// AccountConfig selects the signing key. PrivateKey is only read from the
// environment.
type AccountConfig struct {
	KeyFile    string `toml:"key_file"`
	PrivateKey string `toml:"-"`
}

// QueueConfig holds the throttling limits.
type QueueConfig struct {
	InvocationInterval        time.Duration `toml:"invocation_interval"`
	MaxInvocationsPerInterval int           `toml:"max_invocations_per_interval"`
	MaxConcurrency            int           `toml:"max_concurrency"`
}

// ExecutorConfig holds submission settings.
type ExecutorConfig struct {
	SubmitTimeout   time.Duration `toml:"submit_timeout"`
	DefaultGasLimit uint64        `toml:"default_gas_limit"`
	MultipleWallets bool          `toml:"multiple_wallets"`
	// GasSetting is Slow, Average, Fast or a gwei amount
	GasSetting string `toml:"gas_setting"`
}

// StoreConfig holds pending transaction persistence settings.
type StoreConfig struct {
	Path string `toml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// MetricsConfig holds the Prometheus listener. Empty disables it.
type MetricsConfig struct {
	Listen string `toml:"listen"`
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".txexec")
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		RPC: RPCConfig{
			Endpoint:            "http://localhost:8545",
			ReceiptPollInterval: 2 * time.Second,
			GasRefreshInterval:  60 * time.Second,
		},
		Account: AccountConfig{
			KeyFile: filepath.Join(dataDir, "key"),
		},
		Queue: QueueConfig{
			InvocationInterval:        200 * time.Millisecond,
			MaxInvocationsPerInterval: 3,
			MaxConcurrency:            3,
		},
		Executor: ExecutorConfig{
			SubmitTimeout:   30 * time.Second,
			DefaultGasLimit: 2_000_000,
			MultipleWallets: true,
			GasSetting:      "Average",
		},
		Store: StoreConfig{
			Path: filepath.Join(dataDir, "pending.db"),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
