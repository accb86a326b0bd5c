// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port             string   `env:"PORT" envDefault:"5200"`
	DatabaseURL      string   `env:"DATABASE_URL,required,notEmpty"`
	GameServiceToken string   `env:"GAME_SERVICE_TOKEN,required,notEmpty"`
	AllowedOrigins   []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	LogLevel         string   `env:"LOG_LEVEL" envDefault:"info"`

	JoinPollInterval     time.Duration `env:"JOIN_POLL_INTERVAL" envDefault:"1s"`
	MovePollInterval     time.Duration `env:"MOVE_POLL_INTERVAL" envDefault:"2s"`
	MatchAbandonAfter    time.Duration `env:"MATCH_ABANDON_AFTER" envDefault:"10m"`
	MatchJanitorInterval time.Duration `env:"MATCH_JANITOR_INTERVAL" envDefault:"1m"`
	StartingBalance      float64       `env:"STARTING_BALANCE" envDefault:"1000"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"10"`

	ProfileSyncURL      string        `env:"PROFILE_SYNC_URL"`
	ProfileSyncInterval time.Duration `env:"PROFILE_SYNC_INTERVAL" envDefault:"1m"`

	R2 R2Config `envPrefix:"R2_"`
}

// R2Config points at the receipt bucket. Archiving is off when Bucket is empty.
type R2Config struct {
	AccountID       string `env:"ACCOUNT_ID"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	AccessKeySecret string `env:"ACCESS_KEY_SECRET"`
	Bucket          string `env:"BUCKET_NAME"`
	PublicBaseURL   string `env:"PUBLIC_BASE_URL"`
}

func (r R2Config) Enabled() bool { return r.Bucket != "" }

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("[CONFIG] no .env file found, reading environment variables directly")
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.StartingBalance < 0 {
		return Config{}, fmt.Errorf("STARTING_BALANCE must not be negative, got %v", cfg.StartingBalance)
	}
	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		return Config{}, fmt.Errorf("rate limit must be positive, got %v/s burst %d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	return cfg, nil
}

// SetupLogging applies the configured level to the global logger.
func (c Config) SetupLogging() {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		log.Warn().Str("level", c.LogLevel).Msg("[CONFIG] unknown LOG_LEVEL, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
