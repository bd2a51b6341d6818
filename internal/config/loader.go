package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "txexec.toml"

// Environment variable names
const (
	EnvRPCEndpoint     = "TXEXEC_RPC_ENDPOINT"
	EnvChainID         = "TXEXEC_CHAIN_ID"
	EnvKeyFile         = "TXEXEC_KEY_FILE"
	EnvPrivateKey      = "TXEXEC_PRIVATE_KEY" //nolint:gosec // This is an env var name, not a credential
	EnvMaxConcurrency  = "TXEXEC_MAX_CONCURRENCY"
	EnvSubmitTimeout   = "TXEXEC_SUBMIT_TIMEOUT"
	EnvMultipleWallets = "TXEXEC_MULTIPLE_WALLETS"
	EnvGasSetting      = "TXEXEC_GAS_SETTING"
	EnvStorePath       = "TXEXEC_STORE_PATH"
	EnvLogLevel        = "TXEXEC_LOG_LEVEL"
	EnvMetricsListen   = "TXEXEC_METRICS_LISTEN"
)

// Loader loads configuration from file, environment, and applies defaults.
type Loader struct {
	dataDir    string
	configPath string // explicit config path (empty = use default)
	getenv     func(string) string
}

// NewLoader creates a new config loader.
// dataDir is the base data directory (for finding txexec.toml).
// configPath is an explicit config file path (empty = use dataDir/txexec.toml).
func NewLoader(dataDir, configPath string) *Loader {
	return &Loader{
		dataDir:    dataDir,
		configPath: configPath,
		getenv:     os.Getenv,
	}
}

// Load loads configuration with priority: defaults < file < env.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.dataDir != "" {
		cfg.Account.KeyFile = filepath.Join(l.dataDir, "key")
		cfg.Store.Path = filepath.Join(l.dataDir, "pending.db")
	}

	fileCfg, err := l.loadFile()
	if err != nil {
		return nil, err
	}
	if fileCfg != nil {
		if err := mergeFileConfig(cfg, fileCfg); err != nil {
			return nil, err
		}
	}

	if err := l.applyEnvVars(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the config file the loader reads.
func (l *Loader) Path() string {
	if l.configPath != "" {
		return l.configPath
	}
	dataDir := l.dataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	return filepath.Join(dataDir, ConfigFileName)
}

// loadFile returns nil if no config file exists.
func (l *Loader) loadFile() (*FileConfig, error) {
	path := l.Path()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && l.configPath == "" {
			return nil, nil // No default config file is OK
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileCfg FileConfig
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fileCfg); err != nil {
		return nil, fmt.Errorf("invalid TOML in %s: %w", path, err)
	}
	return &fileCfg, nil
}

// mergeFileConfig merges non-nil FileConfig values into Config.
func mergeFileConfig(cfg *Config, file *FileConfig) error {
	var errs []error
	duration := func(dst *time.Duration, src *string, key string) {
		if src == nil {
			return
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, *src, err))
			return
		}
		*dst = d
	}

	// RPC
	if file.RPC.Endpoint != nil {
		cfg.RPC.Endpoint = *file.RPC.Endpoint
	}
	if file.RPC.ChainID != nil {
		cfg.RPC.ChainID = *file.RPC.ChainID
	}
	duration(&cfg.RPC.ReceiptPollInterval, file.RPC.ReceiptPollInterval, "rpc.receipt_poll_interval")
	duration(&cfg.RPC.GasRefreshInterval, file.RPC.GasRefreshInterval, "rpc.gas_refresh_interval")

	// Account
	if file.Account.KeyFile != nil {
		cfg.Account.KeyFile = *file.Account.KeyFile
	}

	// Queue
	duration(&cfg.Queue.InvocationInterval, file.Queue.InvocationInterval, "queue.invocation_interval")
	if file.Queue.MaxInvocationsPerInterval != nil {
		cfg.Queue.MaxInvocationsPerInterval = *file.Queue.MaxInvocationsPerInterval
	}
	if file.Queue.MaxConcurrency != nil {
		cfg.Queue.MaxConcurrency = *file.Queue.MaxConcurrency
	}

	// Executor
	duration(&cfg.Executor.SubmitTimeout, file.Executor.SubmitTimeout, "executor.submit_timeout")
	if file.Executor.DefaultGasLimit != nil {
		cfg.Executor.DefaultGasLimit = *file.Executor.DefaultGasLimit
	}
	if file.Executor.MultipleWallets != nil {
		cfg.Executor.MultipleWallets = *file.Executor.MultipleWallets
	}
	if file.Executor.GasSetting != nil {
		cfg.Executor.GasSetting = *file.Executor.GasSetting
	}

	if file.Store.Path != nil {
		cfg.Store.Path = *file.Store.Path
	}
	if file.Log.Level != nil {
		cfg.Log.Level = *file.Log.Level
	}
	if file.Metrics.Listen != nil {
		cfg.Metrics.Listen = *file.Metrics.Listen
	}

	return errors.Join(errs...)
}

// applyEnvVars applies environment variable overrides to config.
func (l *Loader) applyEnvVars(cfg *Config) error {
	var errs []error

	if v := l.getenv(EnvRPCEndpoint); v != "" {
		cfg.RPC.Endpoint = v
	}
	if v := l.getenv(EnvChainID); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.RPC.ChainID = i
		} else {
			errs = append(errs, fmt.Errorf("invalid %s %q", EnvChainID, v))
		}
	}
	if v := l.getenv(EnvKeyFile); v != "" {
		cfg.Account.KeyFile = v
	}
	if v := l.getenv(EnvPrivateKey); v != "" {
		cfg.Account.PrivateKey = v
	}
	if v := l.getenv(EnvMaxConcurrency); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Queue.MaxConcurrency = i
		} else {
			errs = append(errs, fmt.Errorf("invalid %s %q", EnvMaxConcurrency, v))
		}
	}
	if v := l.getenv(EnvSubmitTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Executor.SubmitTimeout = d
		} else {
			errs = append(errs, fmt.Errorf("invalid %s %q", EnvSubmitTimeout, v))
		}
	}
	if v := l.getenv(EnvMultipleWallets); v != "" {
		cfg.Executor.MultipleWallets = v == "true" || v == "1"
	}
	if v := l.getenv(EnvGasSetting); v != "" {
		cfg.Executor.GasSetting = v
	}
	if v := l.getenv(EnvStorePath); v != "" {
		cfg.Store.Path = v
	}
	if v := l.getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := l.getenv(EnvMetricsListen); v != "" {
		cfg.Metrics.Listen = v
	}

	return errors.Join(errs...)
}

// Encode writes cfg as TOML. The private key is never written.
func Encode(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(ToFile(cfg)); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}
