package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	LogLevel            string
	DatabaseURL         string // hosted Postgres (Supabase pooler URL); empty = no listing source
	RedisURL            string // durable per-viewer storage; empty = in-memory
	FrontendURLEndsWith string
	DevPassword         string
	FeedDefaultDistance float64
	FeedSnapshotTTL     time.Duration
	StoryTickInterval   time.Duration
	StoryIdleTTL        time.Duration
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("FEED_DEFAULT_DISTANCE", 25)
	v.SetDefault("FEED_SNAPSHOT_TTL", "10m")
	v.SetDefault("STORY_TICK_INTERVAL", "16ms")
	v.SetDefault("STORY_SESSION_IDLE_TTL", "15m")

	return &Config{
		Env:                 v.GetString("APP_ENV"),
		Port:                v.GetString("PORT"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		RedisURL:            v.GetString("REDIS_URL"),
		FrontendURLEndsWith: v.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         v.GetString("DEV_PASSWORD"),
		FeedDefaultDistance: v.GetFloat64("FEED_DEFAULT_DISTANCE"),
		FeedSnapshotTTL:     v.GetDuration("FEED_SNAPSHOT_TTL"),
		StoryTickInterval:   v.GetDuration("STORY_TICK_INTERVAL"),
		StoryIdleTTL:        v.GetDuration("STORY_SESSION_IDLE_TTL"),
	}, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
