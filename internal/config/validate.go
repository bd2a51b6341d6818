package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/altuslabsxyz/txexec/internal/types"
)

// ValidLogLevels are the allowed log level values.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration and returns an error if invalid.
func Validate(cfg *Config) error {
	var errs []string

	validLevel := false
	for _, level := range ValidLogLevels {
		if cfg.Log.Level == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		errs = append(errs, fmt.Sprintf("invalid log level %q (must be one of: %s)",
			cfg.Log.Level, strings.Join(ValidLogLevels, ", ")))
	}

	if cfg.RPC.Endpoint == "" {
		errs = append(errs, "rpc endpoint is required")
	} else if u, err := url.Parse(cfg.RPC.Endpoint); err != nil || u.Scheme == "" {
		errs = append(errs, fmt.Sprintf("invalid rpc endpoint %q", cfg.RPC.Endpoint))
	}
	if cfg.RPC.ChainID < 0 {
		errs = append(errs, "chain_id must be non-negative")
	}
	if cfg.RPC.ReceiptPollInterval <= 0 {
		errs = append(errs, "receipt_poll_interval must be positive")
	}
	if cfg.RPC.GasRefreshInterval <= 0 {
		errs = append(errs, "gas_refresh_interval must be positive")
	}

	if cfg.Queue.InvocationInterval <= 0 {
		errs = append(errs, "invocation_interval must be positive")
	}
	if cfg.Queue.MaxInvocationsPerInterval < 1 {
		errs = append(errs, "max_invocations_per_interval must be at least 1")
	}
	if cfg.Queue.MaxConcurrency < 1 {
		errs = append(errs, "max_concurrency must be at least 1")
	}

	if cfg.Executor.SubmitTimeout <= 0 {
		errs = append(errs, "submit_timeout must be positive")
	}
	if cfg.Executor.DefaultGasLimit == 0 {
		errs = append(errs, "default_gas_limit must be positive")
	}
	if _, err := types.AutoGasPriceGwei(types.DefaultGasPrices, types.AutoGasSetting(cfg.Executor.GasSetting)); err != nil {
		errs = append(errs, fmt.Sprintf("invalid gas_setting %q (must be Slow, Average, Fast or a gwei amount)", cfg.Executor.GasSetting))
	}

	if cfg.Store.Path == "" {
		errs = append(errs, "store path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
