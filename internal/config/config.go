// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	LinkRepo LinkRepoConfig
	YouTube  YouTubeConfig
	LMStudio LMStudioConfig
	Cafe     CafeConfig
	RabbitMQ RabbitMQConfig
	Cache    CacheConfig
	Enrich   EnrichConfig
	Logging  LoggingConfig
	Server   ServerConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// CacheConfig selects and tunes the response cache backend.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type CacheConfig struct {
	Driver     string // "sqlite" or "postgres"
	SQLitePath string

	// Postgres settings, used when Driver is "postgres".
	Host           string
	Name           string
	User           string
	Password       string
	Port           int
	MaxConnections int
	MinConnections int
	MaxIdleTime    time.Duration
	MaxLifetime    time.Duration
}

// LinkRepoConfig points at the hosted markdown listing of stream links.
type LinkRepoConfig struct {
	BaseURL string // readme-{year}.md is appended per request
	Timeout time.Duration
}

// YouTubeConfig contains YouTube Data API configuration.
type YouTubeConfig struct {
	APIKey     string
	ChannelID  string
	DailyQuota int
	Timeout    time.Duration
}

// LMStudioConfig contains the local LLM endpoint configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type LMStudioConfig struct {
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// CafeConfig contains fan-cafe scraping configuration.
type CafeConfig struct {
	BaseURL   string
	ClubID    string
	UserAgent string
	Timeout   time.Duration
}

// RabbitMQConfig contains RabbitMQ connection and queue configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type RabbitMQConfig struct {
	Host       string
	User       string
	Password   string
	Exchange   string
	Queue      string
	RoutingKey string
	Port       int
	Enabled    bool
}

// EnrichConfig tunes the enrichment orchestrator.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type EnrichConfig struct {
	Concurrency int
	CallTimeout time.Duration
	PageTimeout time.Duration
	ServeStale  bool
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
}

// URL returns the AMQP connection URL.
func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.User, c.Password, c.Host, c.Port)
}

// DSN returns the Postgres connection string for the cache backend.
func (c CacheConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	setDefaults()

	// Read environment variables
	viper.AutomaticEnv()
	viper.SetEnvPrefix("APP")

	// Try to read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.shutdowntimeout", 30*time.Second)

	// Cache
	viper.SetDefault("cache.driver", "sqlite")
	viper.SetDefault("cache.sqlitepath", "./data/stream_cache.db")
	viper.SetDefault("cache.host", "localhost")
	viper.SetDefault("cache.port", 5432)
	viper.SetDefault("cache.name", "streamcache")
	viper.SetDefault("cache.user", "postgres")
	viper.SetDefault("cache.password", "postgres")
	viper.SetDefault("cache.maxconnections", 10)
	viper.SetDefault("cache.minconnections", 2)
	viper.SetDefault("cache.maxidletime", 10*time.Minute)
	viper.SetDefault("cache.maxlifetime", 1*time.Hour)

	// Link repository
	viper.SetDefault("linkrepo.baseurl",
		"https://raw.githubusercontent.com/eun2ce/uzuhama-live-link/main")
	viper.SetDefault("linkrepo.timeout", 10*time.Second)

	// YouTube Data API
	viper.SetDefault("youtube.apikey", "")
	viper.SetDefault("youtube.channelid", "")
	viper.SetDefault("youtube.dailyquota", 10000)
	viper.SetDefault("youtube.timeout", 15*time.Second)

	// LM Studio
	viper.SetDefault("lmstudio.baseurl", "http://localhost:1234")
	viper.SetDefault("lmstudio.model", "qwen/qwen3-4b")
	viper.SetDefault("lmstudio.maxtokens", 500)
	viper.SetDefault("lmstudio.temperature", 0.7)
	viper.SetDefault("lmstudio.timeout", 60*time.Second)

	// Fan cafe
	viper.SetDefault("cafe.baseurl", "https://cafe.naver.com")
	viper.SetDefault("cafe.clubid", "")
	viper.SetDefault("cafe.useragent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	viper.SetDefault("cafe.timeout", 10*time.Second)

	// RabbitMQ
	viper.SetDefault("rabbitmq.enabled", false)
	viper.SetDefault("rabbitmq.host", "localhost")
	viper.SetDefault("rabbitmq.port", 5672)
	viper.SetDefault("rabbitmq.user", "guest")
	viper.SetDefault("rabbitmq.password", "guest")
	viper.SetDefault("rabbitmq.exchange", "uha.annotations")
	viper.SetDefault("rabbitmq.queue", "uha.annotations.jobs")
	viper.SetDefault("rabbitmq.routingkey", "annotation.requested")

	// Enrichment
	viper.SetDefault("enrich.concurrency", 5)
	viper.SetDefault("enrich.calltimeout", 20*time.Second)
	viper.SetDefault("enrich.pagetimeout", 2*time.Minute)
	viper.SetDefault("enrich.servestale", true)

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
}
