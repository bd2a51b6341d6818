package types

import (
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/params"
)

// AutoGasSetting is either one of the auto tiers or an explicit gas price in gwei.
type AutoGasSetting string

// Auto gas tiers.
const (
	GasSettingSlow    AutoGasSetting = "Slow"
	GasSettingAverage AutoGasSetting = "Average"
	GasSettingFast    AutoGasSetting = "Fast"
)

// IsAuto reports whether s names one of the auto tiers.
func (s AutoGasSetting) IsAuto() bool {
	return s == GasSettingSlow || s == GasSettingAverage || s == GasSettingFast
}

// GasPrices holds the auto tier prices in gwei.
type GasPrices struct {
	Slow    float64 `json:"slow"`
	Average float64 `json:"average"`
	Fast    float64 `json:"fast"`
}

// DefaultGasPrices is used until prices have been fetched from the network.
var DefaultGasPrices = GasPrices{Slow: 1, Average: 3, Fast: 10}

// MaxAutoGasPriceGwei caps the fetched tier prices.
const MaxAutoGasPriceGwei = 15

// AutoGasPriceGwei resolves a gas setting to a price in gwei.
// Non-tier settings are parsed as a decimal gwei amount.
func AutoGasPriceGwei(prices GasPrices, setting AutoGasSetting) (float64, error) {
	switch setting {
	case GasSettingSlow:
		return prices.Slow, nil
	case GasSettingAverage:
		return prices.Average, nil
	case GasSettingFast:
		return prices.Fast, nil
	}

	gwei, err := strconv.ParseFloat(string(setting), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid gas setting %q: %w", setting, err)
	}
	if math.IsNaN(gwei) || math.IsInf(gwei, 0) {
		return 0, fmt.Errorf("invalid gas setting %q: must be a finite number", setting)
	}
	if gwei < 0 {
		return 0, fmt.Errorf("invalid gas setting %q: must be non-negative", setting)
	}
	return gwei, nil
}

// GweiToWei converts a gwei amount to wei, truncating below one wei.
func GweiToWei(gwei float64) *big.Int {
	f := new(big.Float).SetFloat64(gwei)
	f.Mul(f, new(big.Float).SetInt64(params.GWei))
	wei, _ := f.Int(nil)
	return wei
}

// WeiToGwei converts a wei amount to gwei.
func WeiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f := new(big.Float).SetInt(wei)
	f.Quo(f, new(big.Float).SetInt64(params.GWei))
	gwei, _ := f.Float64()
	return gwei
}
