package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	API          APIConfig          `mapstructure:"api"`
	Live         LiveConfig         `mapstructure:"live"`
	Counts       CountsConfig       `mapstructure:"counts"`
	Invalidation InvalidationConfig `mapstructure:"invalidation"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Log          LogConfig          `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// APIConfig describes the marketplace REST backend.
type APIConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	Burst           int           `mapstructure:"burst"`
	ProductCacheTTL time.Duration `mapstructure:"product_cache_ttl"`
}

// LiveConfig describes the live-update websocket endpoint. BaseURL is independent
// of APIConfig.BaseURL.
type LiveConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	PathTemplate     string        `mapstructure:"path_template"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
}

type CountsConfig struct {
	PollSchedule string        `mapstructure:"poll_schedule"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type InvalidationConfig struct {
	Driver  string `mapstructure:"driver"`
	Channel string `mapstructure:"channel"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

func newViper() *viper.Viper {
	v := viper.New()

	// Set default values
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("api.rate_limit", 20.0)
	v.SetDefault("api.burst", 10)
	v.SetDefault("api.product_cache_ttl", time.Minute)
	v.SetDefault("live.base_url", "ws://localhost:8000")
	v.SetDefault("live.path_template", "/ws/products/{subject}/")
	v.SetDefault("live.base_delay", time.Second)
	v.SetDefault("live.max_delay", 30*time.Second)
	v.SetDefault("live.max_attempts", 5)
	v.SetDefault("live.handshake_timeout", 10*time.Second)
	v.SetDefault("live.ping_interval", 30*time.Second)
	v.SetDefault("live.pong_wait", 60*time.Second)
	v.SetDefault("counts.poll_schedule", "@every 30s")
	v.SetDefault("counts.fetch_timeout", 5*time.Second)
	v.SetDefault("invalidation.driver", DriverMemory)
	v.SetDefault("invalidation.channel", "storefront_invalidations")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")

	// Environment variable support
	v.AutomaticEnv()

	// Environment variable mappings
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("api.base_url", "API_BASE_URL")
	v.BindEnv("api.timeout", "API_TIMEOUT")
	v.BindEnv("api.rate_limit", "API_RATE_LIMIT")
	v.BindEnv("api.burst", "API_BURST")
	v.BindEnv("api.product_cache_ttl", "API_PRODUCT_CACHE_TTL")
	v.BindEnv("live.base_url", "LIVE_BASE_URL")
	v.BindEnv("live.path_template", "LIVE_PATH_TEMPLATE")
	v.BindEnv("live.base_delay", "LIVE_BASE_DELAY")
	v.BindEnv("live.max_delay", "LIVE_MAX_DELAY")
	v.BindEnv("live.max_attempts", "LIVE_MAX_ATTEMPTS")
	v.BindEnv("live.handshake_timeout", "LIVE_HANDSHAKE_TIMEOUT")
	v.BindEnv("live.ping_interval", "LIVE_PING_INTERVAL")
	v.BindEnv("live.pong_wait", "LIVE_PONG_WAIT")
	v.BindEnv("counts.poll_schedule", "COUNTS_POLL_SCHEDULE")
	v.BindEnv("counts.fetch_timeout", "COUNTS_FETCH_TIMEOUT")
	v.BindEnv("invalidation.driver", "INVALIDATION_DRIVER")
	v.BindEnv("invalidation.channel", "INVALIDATION_CHANNEL")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("log.level", "LOG_LEVEL")

	return v
}

func Load() (*Config, error) {
	v := newViper()

	// Configuration file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/auction-storefront/")

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return decode(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.Live.BaseURL == "" {
		errs = append(errs, errors.New("live.base_url is required"))
	} else if !strings.HasPrefix(c.Live.BaseURL, "ws://") && !strings.HasPrefix(c.Live.BaseURL, "wss://") {
		errs = append(errs, fmt.Errorf("live.base_url must use ws or wss scheme: %q", c.Live.BaseURL))
	}
	if !strings.Contains(c.Live.PathTemplate, "{subject}") {
		errs = append(errs, errors.New("live.path_template must contain {subject}"))
	}
	if c.Live.MaxAttempts < 0 {
		errs = append(errs, errors.New("live.max_attempts must not be negative"))
	}
	if c.Live.BaseDelay <= 0 || c.Live.MaxDelay < c.Live.BaseDelay {
		errs = append(errs, errors.New("live.base_delay must be positive and not exceed live.max_delay"))
	}
	if c.Live.PingInterval > 0 && c.Live.PongWait <= c.Live.PingInterval {
		errs = append(errs, errors.New("live.pong_wait must exceed live.ping_interval"))
	}
	if c.API.RateLimit <= 0 || c.API.Burst <= 0 {
		errs = append(errs, errors.New("api.rate_limit and api.burst must be positive"))
	}
	switch c.Invalidation.Driver {
	case DriverMemory, DriverRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown invalidation.driver %q", c.Invalidation.Driver))
	}

	return errors.Join(errs...)
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, API: %s, Live: %s, Invalidation: %s, Redis: %s",
		c.Server.Host,
		c.Server.Port,
		c.API.BaseURL,
		c.Live.BaseURL,
		c.Invalidation.Driver,
		c.Redis.Address,
	)
}
