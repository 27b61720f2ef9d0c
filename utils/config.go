package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the bot.
type Config struct {
	Bot      BotConfig      `mapstructure:"bot"`
	Database DatabaseConfig `mapstructure:"database"`
	Market   MarketConfig   `mapstructure:"market"`
	Renderer RendererConfig `mapstructure:"renderer"`
	Events   EventsConfig   `mapstructure:"events"`
	Economy  EconomyConfig  `mapstructure:"economy"`
	Session  SessionConfig  `mapstructure:"session"`
}

// BotConfig holds Discord connection configuration.
type BotConfig struct {
	Token      string `mapstructure:"token"`
	HealthPort string `mapstructure:"health_port"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// MarketConfig holds the market-data feed endpoints.
type MarketConfig struct {
	StreamURL   string        `mapstructure:"stream_url"`
	SnapshotURL string        `mapstructure:"snapshot_url"`
	Symbols     []string      `mapstructure:"symbols"`
	SweepEvery  time.Duration `mapstructure:"sweep_every"`
}

// RendererConfig holds the remote image renderer endpoint.
type RendererConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EventsConfig holds the optional NATS event bus configuration.
type EventsConfig struct {
	NATSURL string `mapstructure:"nats_url"`
}

// EconomyConfig holds economy tunables.
type EconomyConfig struct {
	StartingBalance int64 `mapstructure:"starting_balance"`
	DailyReward     int64 `mapstructure:"daily_reward"`
	CrateCost       int64 `mapstructure:"crate_cost"`
}

// SessionConfig holds the game session timeout windows.
type SessionConfig struct {
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
	MaxLifetime       time.Duration `mapstructure:"max_lifetime"`
}

// LoadConfig reads config.yaml (if present) and environment variables.
// A local .env file is loaded first so container and dev setups behave the same.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("bot.token", "")
	v.SetDefault("bot.health_port", "8080")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 4)
	v.SetDefault("database.max_conn_lifetime", 45*time.Minute)
	v.SetDefault("database.max_conn_idle_time", 5*time.Minute)
	v.SetDefault("market.stream_url", "wss://stream.binance.com:9443/ws")
	v.SetDefault("market.snapshot_url", "https://api.binance.com/api/v3/ticker/price")
	v.SetDefault("market.symbols", []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "DOGEUSDT"})
	v.SetDefault("market.sweep_every", 15*time.Second)
	v.SetDefault("renderer.url", "")
	v.SetDefault("renderer.timeout", 5*time.Second)
	v.SetDefault("events.nats_url", "")
	v.SetDefault("economy.starting_balance", 1000)
	v.SetDefault("economy.daily_reward", 500)
	v.SetDefault("economy.crate_cost", 250)
	v.SetDefault("session.inactivity_timeout", 2*time.Minute)
	v.SetDefault("session.max_lifetime", 30*time.Minute)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// Well-known env names used by hosting platforms.
	if tok := v.GetString("BOT_TOKEN"); tok != "" {
		v.Set("bot.token", tok)
	}
	if url := v.GetString("DATABASE_URL"); url != "" {
		v.Set("database.url", url)
	}
	if port := v.GetString("PORT"); port != "" {
		v.Set("bot.health_port", port)
	}
	if nats := v.GetString("NATS_URL"); nats != "" {
		v.Set("events.nats_url", nats)
	}
	if render := v.GetString("RENDERER_URL"); render != "" {
		v.Set("renderer.url", render)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
