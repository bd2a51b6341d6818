package config

import "time"

// FileConfig represents the raw txexec.toml file contents.
// All fields are pointers to distinguish "not set" from "set to zero/false".
type FileConfig struct {
	RPC      FileRPCConfig      `toml:"rpc"`
	Account  FileAccountConfig  `toml:"account"`
	Queue    FileQueueConfig    `toml:"queue"`
	Executor FileExecutorConfig `toml:"executor"`
	Store    FileStoreConfig    `toml:"store"`
	Log      FileLogConfig      `toml:"log"`
	Metrics  FileMetricsConfig  `toml:"metrics"`
}

// FileRPCConfig is the TOML representation of RPCConfig.
// Durations are strings since TOML cannot decode directly to time.Duration.
type FileRPCConfig struct {
	Endpoint            *string `toml:"endpoint"`
	ChainID             *int64  `toml:"chain_id"`
	ReceiptPollInterval *string `toml:"receipt_poll_interval"`
	GasRefreshInterval  *string `toml:"gas_refresh_interval"`
}

// FileAccountConfig is the TOML representation of AccountConfig.
type FileAccountConfig struct {
	KeyFile *string `toml:"key_file"`
}

// FileQueueConfig is the TOML representation of QueueConfig.
type FileQueueConfig struct {
	InvocationInterval        *string `toml:"invocation_interval"`
	MaxInvocationsPerInterval *int    `toml:"max_invocations_per_interval"`
	MaxConcurrency            *int    `toml:"max_concurrency"`
}

// FileExecutorConfig is the TOML representation of ExecutorConfig.
type FileExecutorConfig struct {
	SubmitTimeout   *string `toml:"submit_timeout"`
	DefaultGasLimit *uint64 `toml:"default_gas_limit"`
	MultipleWallets *bool   `toml:"multiple_wallets"`
	GasSetting      *string `toml:"gas_setting"`
}

// FileStoreConfig is the TOML representation of StoreConfig.
type FileStoreConfig struct {
	Path *string `toml:"path"`
}

// FileLogConfig is the TOML representation of LogConfig.
type FileLogConfig struct {
	Level *string `toml:"level"`
}

// FileMetricsConfig is the TOML representation of MetricsConfig.
type FileMetricsConfig struct {
	Listen *string `toml:"listen"`
}

// ToFile returns the file form of cfg with every field set.
func ToFile(cfg *Config) *FileConfig {
	dur := func(d time.Duration) *string {
		s := d.String()
		return &s
	}
	return &FileConfig{
		RPC: FileRPCConfig{
			Endpoint:            &cfg.RPC.Endpoint,
			ChainID:             &cfg.RPC.ChainID,
			ReceiptPollInterval: dur(cfg.RPC.ReceiptPollInterval),
			GasRefreshInterval:  dur(cfg.RPC.GasRefreshInterval),
		},
		Account: FileAccountConfig{KeyFile: &cfg.Account.KeyFile},
		Queue: FileQueueConfig{
			InvocationInterval:        dur(cfg.Queue.InvocationInterval),
			MaxInvocationsPerInterval: &cfg.Queue.MaxInvocationsPerInterval,
			MaxConcurrency:            &cfg.Queue.MaxConcurrency,
		},
		Executor: FileExecutorConfig{
			SubmitTimeout:   dur(cfg.Executor.SubmitTimeout),
			DefaultGasLimit: &cfg.Executor.DefaultGasLimit,
			MultipleWallets: &cfg.Executor.MultipleWallets,
			GasSetting:      &cfg.Executor.GasSetting,
		},
		Store:   FileStoreConfig{Path: &cfg.Store.Path},
		Log:     FileLogConfig{Level: &cfg.Log.Level},
		Metrics: FileMetricsConfig{Listen: &cfg.Metrics.Listen},
	}
}
