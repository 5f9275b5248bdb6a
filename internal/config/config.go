package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// RateLimit allows MaxCalls calls within any trailing Period.
type RateLimit struct {
	MaxCalls int           `mapstructure:"max_calls"`
	Period   time.Duration `mapstructure:"period"`
}

// Provider configures one booking system.
type Provider struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxGuests     int           `mapstructure:"max_guests"`
	MaxWindowDays int           `mapstructure:"max_window_days"`
	CoarseLimit   RateLimit     `mapstructure:"coarse_limit"`
	DetailedLimit RateLimit     `mapstructure:"detailed_limit"`
}

// Config is the full application configuration.
type Config struct {
	HTTPAddr     string              `mapstructure:"http_addr"`
	LogLevel     string              `mapstructure:"log_level"`
	RosterPath   string              `mapstructure:"roster_path"`
	CacheTTL     time.Duration       `mapstructure:"cache_ttl"`
	Concurrency  int                 `mapstructure:"concurrency"`
	MaxRangeDays int                 `mapstructure:"max_range_days"`
	RequestLimit RateLimit           `mapstructure:"request_limit"`
	Providers    map[string]Provider `mapstructure:"providers"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("roster_path", "data/huts.csv")
	v.SetDefault("cache_ttl", 6*time.Hour)
	v.SetDefault("concurrency", 4)
	v.SetDefault("max_range_days", 366)
	v.SetDefault("request_limit.max_calls", 10)
	v.SetDefault("request_limit.period", time.Minute)

	v.SetDefault("providers.bookingsuedtirol.base_url", "https://api.bookingsuedtirol.com/widgets/v6")
	v.SetDefault("providers.bookingsuedtirol.timeout", 20*time.Second)
	v.SetDefault("providers.bookingsuedtirol.max_guests", 4)
	v.SetDefault("providers.bookingsuedtirol.max_window_days", 60)
	v.SetDefault("providers.bookingsuedtirol.coarse_limit.max_calls", 1)
	v.SetDefault("providers.bookingsuedtirol.coarse_limit.period", 5*time.Second)
	v.SetDefault("providers.bookingsuedtirol.detailed_limit.max_calls", 1)
	v.SetDefault("providers.bookingsuedtirol.detailed_limit.period", 5*time.Second)
}

// Load reads configuration from defaults, an optional .env file, HUTAVAIL_* environment
// variables and, if path is not empty, a config file.
func Load(path string) (Config, error) {
	v := viper.New()
	if err := ReadInto(v, path); err != nil {
		return Config{}, err
	}
	return Decode(v)
}

// ReadInto prepares v with defaults, environment and the optional config file.
// Callers may bind flags on v before calling Decode.
func ReadInto(v *viper.Viper, path string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix("HUTAVAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the aggregation cannot run with.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrInvalidConfig, c.Concurrency)
	}
	if c.MaxRangeDays < 1 {
		return fmt.Errorf("%w: max_range_days must be at least 1, got %d", ErrInvalidConfig, c.MaxRangeDays)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("%w: cache_ttl must not be negative", ErrInvalidConfig)
	}
	for name, p := range c.Providers {
		if p.BaseURL == "" {
			return fmt.Errorf("%w: providers.%s.base_url is required", ErrInvalidConfig, name)
		}
		if p.MaxGuests < 1 {
			return fmt.Errorf("%w: providers.%s.max_guests must be at least 1", ErrInvalidConfig, name)
		}
		if p.MaxWindowDays < 1 {
			return fmt.Errorf("%w: providers.%s.max_window_days must be at least 1", ErrInvalidConfig, name)
		}
	}
	return nil
}
