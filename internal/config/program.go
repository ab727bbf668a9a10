package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// ProgramConfig holds the business settings of the affiliate program.
// It is reloadable at runtime so a terms-version rollover or a lock-period
// change never requires a deploy.
type ProgramConfig struct {
	RequiredTermsVersion string `mapstructure:"requiredTermsVersion"`
	CommissionLockDays   int    `mapstructure:"commissionLockDays"`
	DefaultLevelOneBps   int    `mapstructure:"defaultLevelOneBps"`
	DefaultLevelTwoBps   int    `mapstructure:"defaultLevelTwoBps"`
	MaxLevelOneBps       int    `mapstructure:"maxLevelOneBps"`
	MaxLevelTwoBps       int    `mapstructure:"maxLevelTwoBps"`
	ReferralCodeLength   int    `mapstructure:"referralCodeLength"`
	ReferralCodeAttempts int    `mapstructure:"referralCodeAttempts"`
}

func DefaultProgramConfig() ProgramConfig {
	return ProgramConfig{
		RequiredTermsVersion: "2025-01",
		CommissionLockDays:   30,
		DefaultLevelOneBps:   2000,
		DefaultLevelTwoBps:   500,
		MaxLevelOneBps:       5000,
		MaxLevelTwoBps:       2000,
		ReferralCodeLength:   12,
		ReferralCodeAttempts: 5,
	}
}

// ProgramHolder exposes the current program config and hot-reloads it when
// the backing file changes.
type ProgramHolder struct {
	current atomic.Value // holds ProgramConfig
}

// ProgramModule provides the program config holder.
var ProgramModule = fx.Provide(NewProgramHolder)

func NewProgramHolder() (*ProgramHolder, error) {
	v := viper.New()

	v.SetConfigName("program")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/partnerly/config")
	v.AddConfigPath("/etc/partnerly")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PARTNERLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultProgramConfig()
	v.SetDefault("program.requiredTermsVersion", defaults.RequiredTermsVersion)
	v.SetDefault("program.commissionLockDays", defaults.CommissionLockDays)
	v.SetDefault("program.defaultLevelOneBps", defaults.DefaultLevelOneBps)
	v.SetDefault("program.defaultLevelTwoBps", defaults.DefaultLevelTwoBps)
	v.SetDefault("program.maxLevelOneBps", defaults.MaxLevelOneBps)
	v.SetDefault("program.maxLevelTwoBps", defaults.MaxLevelTwoBps)
	v.SetDefault("program.referralCodeLength", defaults.ReferralCodeLength)
	v.SetDefault("program.referralCodeAttempts", defaults.ReferralCodeAttempts)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg ProgramConfig
	if err := v.UnmarshalKey("program", &cfg); err != nil {
		return nil, err
	}
	if err := validateProgramConfig(cfg); err != nil {
		return nil, err
	}

	holder := &ProgramHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ProgramConfig
		if err := v.UnmarshalKey("program", &updated); err != nil {
			log.Printf("[program-config] reload failed: %v", err)
			return
		}
		if err := validateProgramConfig(updated); err != nil {
			log.Printf("[program-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[program-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticProgramHolder returns a holder pinned to the given config. Tests
// and embedded callers use it to avoid filesystem watching.
func NewStaticProgramHolder(cfg ProgramConfig) *ProgramHolder {
	holder := &ProgramHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *ProgramHolder) Get() ProgramConfig {
	return h.current.Load().(ProgramConfig)
}

func validateProgramConfig(cfg ProgramConfig) error {
	if strings.TrimSpace(cfg.RequiredTermsVersion) == "" {
		return errors.New("program.requiredTermsVersion cannot be empty")
	}
	if cfg.CommissionLockDays < 0 {
		return errors.New("program.commissionLockDays cannot be negative")
	}
	if cfg.MaxLevelOneBps <= 0 || cfg.MaxLevelOneBps > 5000 {
		return errors.New("program.maxLevelOneBps must be within (0, 5000]")
	}
	if cfg.MaxLevelTwoBps <= 0 || cfg.MaxLevelTwoBps > 2000 {
		return errors.New("program.maxLevelTwoBps must be within (0, 2000]")
	}
	if cfg.DefaultLevelOneBps < 0 || cfg.DefaultLevelOneBps > cfg.MaxLevelOneBps {
		return errors.New("program.defaultLevelOneBps exceeds maxLevelOneBps")
	}
	if cfg.DefaultLevelTwoBps < 0 || cfg.DefaultLevelTwoBps > cfg.MaxLevelTwoBps {
		return errors.New("program.defaultLevelTwoBps exceeds maxLevelTwoBps")
	}
	if cfg.ReferralCodeLength < 4 || cfg.ReferralCodeLength > 32 {
		return errors.New("program.referralCodeLength must be within [4, 32]")
	}
	return nil
}
