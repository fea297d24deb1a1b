package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config maps 1:1 to environment variables. A .env file in the working
// directory is read when present; real env vars win over it.
type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	AllowedOrigin string `mapstructure:"ALLOWED_ORIGIN"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	RedisURL      string `mapstructure:"REDIS_URL"`

	ShopID                string `mapstructure:"DEFAULT_SHOP_ID"`
	ShopTimezone          string `mapstructure:"SHOP_TIMEZONE"`
	StatsCacheTTLSeconds  int    `mapstructure:"STATS_CACHE_TTL_SECONDS"`
	AuthSecret            string `mapstructure:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`
	ManagerPIN            string `mapstructure:"MANAGER_PIN"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("DEFAULT_SHOP_ID", "main-shop")
	v.SetDefault("SHOP_TIMEZONE", "Asia/Jakarta")
	v.SetDefault("STATS_CACHE_TTL_SECONDS", 30)
	v.SetDefault("AUTH_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("MANAGER_PIN", "")

	// Optional for local development; a missing file is fine.
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.ManagerPIN = strings.TrimSpace(cfg.ManagerPIN)
	if cfg.StatsCacheTTLSeconds < 1 {
		cfg.StatsCacheTTLSeconds = 30
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Location resolves SHOP_TIMEZONE. Daily stats are bucketed in it.
func (c Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.ShopTimezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.ShopTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SHOP_TIMEZONE %q: %w", c.ShopTimezone, err)
	}
	return loc, nil
}

func (c Config) StatsCacheTTL() time.Duration {
	return time.Duration(c.StatsCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}
