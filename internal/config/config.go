// Package config loads the matching engine's tunables, in the shape of
// 0xtitan6-polymarket-mm/internal/config: a YAML file (optional — the
// engine has usable defaults) with environment-variable overrides via
// viper, plus a Validate pass.
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds the engine's tunables. Decimal fields are
// loaded from their string form (viper has no native decimal.Decimal
// support), so the struct is populated by Load rather than a single
// v.Unmarshal call.
type Config struct {
	// MaxOrdersPerMatch bounds the matchable-iterator consumption per
	// placement.
	MaxOrdersPerMatch int

	// MinPriceIncrement is the tick size; prices must be multiples of it.
	MinPriceIncrement decimal.Decimal

	// FeeRate is applied to both sides of each trade.
	FeeRate decimal.Decimal

	// MarketBufferPct is the over-reservation fraction for MARKET orders.
	MarketBufferPct decimal.Decimal
}

// Defaults returns the engine's default configuration.
func Defaults() Config {
	return Config{
		MaxOrdersPerMatch: 100,
		MinPriceIncrement: decimal.NewFromFloat(0.01),
		FeeRate:           decimal.NewFromFloat(0.002),
		MarketBufferPct:   decimal.NewFromFloat(0.05),
	}
}

// Load reads config from an optional YAML file with ENGINE_* environment
// overrides, falling back to Defaults for anything unset.
func Load(path string) (Config, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("max_orders_per_match", cfg.MaxOrdersPerMatch)
	v.SetDefault("min_price_increment", cfg.MinPriceIncrement.String())
	v.SetDefault("fee_rate", cfg.FeeRate.String())
	v.SetDefault("market_buffer_pct", cfg.MarketBufferPct.String())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	cfg.MaxOrdersPerMatch = v.GetInt("max_orders_per_match")

	tick, err := decimal.NewFromString(v.GetString("min_price_increment"))
	if err != nil {
		return cfg, fmt.Errorf("parse min_price_increment: %w", err)
	}
	cfg.MinPriceIncrement = tick

	fee, err := decimal.NewFromString(v.GetString("fee_rate"))
	if err != nil {
		return cfg, fmt.Errorf("parse fee_rate: %w", err)
	}
	cfg.FeeRate = fee

	buffer, err := decimal.NewFromString(v.GetString("market_buffer_pct"))
	if err != nil {
		return cfg, fmt.Errorf("parse market_buffer_pct: %w", err)
	}
	cfg.MarketBufferPct = buffer

	return cfg, cfg.Validate()
}

// Validate checks all fields are within sane ranges.
func (c Config) Validate() error {
	if c.MaxOrdersPerMatch <= 0 {
		return fmt.Errorf("max_orders_per_match must be > 0")
	}
	if c.MinPriceIncrement.LessThanOrEqual(decimal.Zero) || c.MinPriceIncrement.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("min_price_increment must be in (0, 1)")
	}
	if c.FeeRate.IsNegative() {
		return fmt.Errorf("fee_rate must be >= 0")
	}
	if c.MarketBufferPct.IsNegative() {
		return fmt.Errorf("market_buffer_pct must be >= 0")
	}
	return nil
}

// TicksPerUnit is 1/MinPriceIncrement, the number of valid tick slots
// between 0 and 1 (e.g. 100 at the default 0.01 increment).
func (c Config) TicksPerUnit() int64 {
	one := decimal.NewFromInt(1)
	return one.Div(c.MinPriceIncrement).IntPart()
}
