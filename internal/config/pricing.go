package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// PricingConfig is the price schedule seeded at startup.
type PricingConfig struct {
	Tiers []TierConfig `mapstructure:"tiers"`
}

type TierConfig struct {
	StartPrice         float64 `mapstructure:"start_price"`
	EndPrice           float64 `mapstructure:"end_price"`
	FixedFee           float64 `mapstructure:"fixed_fee"`
	VariableFeePercent float64 `mapstructure:"variable_fee_percent"`
}

// LoadPricing reads the pricing seed file. An explicit path must exist; without
// one the default locations are searched and a missing file yields an empty
// schedule.
func LoadPricing(path string) (PricingConfig, error) {
	v := viper.New()

	path = strings.TrimSpace(path)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pricing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/gavel")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("GAVEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return PricingConfig{}, nil
		}
		return PricingConfig{}, err
	}

	var cfg PricingConfig
	if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return PricingConfig{}, err
	}
	return cfg, nil
}
