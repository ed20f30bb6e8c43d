package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PricingConfig bounds rule-engine behavior that operators may tune
// without a redeploy.
type PricingConfig struct {
	// DefaultPriority is assigned to rules created without an explicit rank.
	DefaultPriority int `mapstructure:"defaultPriority"`
	// MinPriority and MaxPriority clamp the rank scale.
	MinPriority int `mapstructure:"minPriority"`
	MaxPriority int `mapstructure:"maxPriority"`
	// CommitRetries bounds re-matching attempts when a usage counter
	// races past its cap between calculation and commit.
	CommitRetries int `mapstructure:"commitRetries"`
	// MaxRulesPerQuote caps how many adjustments a single quote may carry.
	MaxRulesPerQuote int `mapstructure:"maxRulesPerQuote"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		DefaultPriority:  100,
		MinPriority:      0,
		MaxPriority:      1000,
		CommitRetries:    3,
		MaxRulesPerQuote: 50,
	}
}

type PricingConfigHolder struct {
	current atomic.Value // holds PricingConfig
}

// NewPricingConfigHolder loads pricing.yml and keeps it hot-reloaded.
func NewPricingConfigHolder() (*PricingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tariff/config")
	v.AddConfigPath("/etc/tariff")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TARIFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPricingConfig()
	v.SetDefault("pricing.defaultPriority", defaults.DefaultPriority)
	v.SetDefault("pricing.minPriority", defaults.MinPriority)
	v.SetDefault("pricing.maxPriority", defaults.MaxPriority)
	v.SetDefault("pricing.commitRetries", defaults.CommitRetries)
	v.SetDefault("pricing.maxRulesPerQuote", defaults.MaxRulesPerQuote)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg PricingConfig
	if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return nil, err
	}
	if err := validatePricingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PricingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PricingConfig
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			log.Printf("[pricing-config] reload failed: %v", err)
			return
		}
		if err := validatePricingConfig(updated); err != nil {
			log.Printf("[pricing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[pricing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PricingConfigHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

func validatePricingConfig(cfg PricingConfig) error {
	if cfg.MinPriority > cfg.MaxPriority {
		return errors.New("pricing.minPriority cannot exceed pricing.maxPriority")
	}
	if cfg.DefaultPriority < cfg.MinPriority || cfg.DefaultPriority > cfg.MaxPriority {
		return errors.New("pricing.defaultPriority must fall within the priority bounds")
	}
	if cfg.CommitRetries < 1 {
		return errors.New("pricing.commitRetries must be at least 1")
	}
	if cfg.MaxRulesPerQuote < 1 {
		return errors.New("pricing.maxRulesPerQuote must be at least 1")
	}
	return nil
}
