package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"qosmon/internal/core/domain"
	"qosmon/pkg/validation"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Monitoring struct {
		Interval        time.Duration `yaml:"interval"`
		TickTimeout     time.Duration `yaml:"tick_timeout"`
		HistoryCapacity int           `yaml:"history_capacity"`
		AlertBuffer     int           `yaml:"alert_buffer"`
		RealtimeTTL     time.Duration `yaml:"realtime_ttl"`
	} `yaml:"monitoring"`

	Thresholds domain.QualityThresholds `yaml:"thresholds"`

	Prometheus struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"prometheus"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`

		// ConnectAttempts bounds the startup retries before falling back to
		// memory repositories.
		ConnectAttempts int           `yaml:"connect_attempts"`
		CallTimeout     time.Duration `yaml:"call_timeout"`
		// PublishEvents fans metrics and alerts out to other instances.
		PublishEvents bool `yaml:"publish_events"`
	} `yaml:"redis"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		Feed struct {
			ConnectionsPerMinute int `yaml:"connections_per_minute"`
			MaxConcurrent        int `yaml:"max_concurrent_connections"`
		} `yaml:"feed"`
	} `yaml:"rate_limiting"`

	Feed struct {
		PingInterval  time.Duration `yaml:"ping_interval"`
		PongTimeout   time.Duration `yaml:"pong_timeout"`
		WriteTimeout  time.Duration `yaml:"write_timeout"`
		SendQueueSize int           `yaml:"send_queue_size"`
	} `yaml:"feed"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Monitoring
	if c.Monitoring.Interval <= 0 {
		return fmt.Errorf("monitoring.interval must be > 0")
	}
	if err := validation.ValidateIntervalMs(int(c.Monitoring.Interval.Milliseconds())); err != nil {
		return fmt.Errorf("monitoring.interval: %w", err)
	}
	if c.Monitoring.TickTimeout < 0 {
		return fmt.Errorf("monitoring.tick_timeout must be >= 0")
	}
	if c.Monitoring.HistoryCapacity <= 0 {
		return fmt.Errorf("monitoring.history_capacity must be > 0")
	}
	if c.Monitoring.AlertBuffer <= 0 {
		return fmt.Errorf("monitoring.alert_buffer must be > 0")
	}
	if c.Monitoring.RealtimeTTL <= 0 {
		return fmt.Errorf("monitoring.realtime_ttl must be > 0")
	}

	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}

	// Prometheus
	if c.Prometheus.Enabled && c.Prometheus.Path == "" {
		return fmt.Errorf("prometheus.path must not be empty when prometheus.enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.ConnectAttempts < 0 {
			return fmt.Errorf("redis.connect_attempts must be >= 0")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if err := validation.ValidateURL(c.Tracing.JaegerURL); err != nil {
			return fmt.Errorf("tracing.jaeger_url: %w", err)
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Feed.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.feed.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Feed.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.feed.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
	}

	// Feed
	if c.Feed.PingInterval <= 0 {
		return fmt.Errorf("feed.ping_interval must be > 0")
	}
	if c.Feed.PongTimeout <= c.Feed.PingInterval {
		return fmt.Errorf("feed.pong_timeout must be > feed.ping_interval")
	}
	if c.Feed.WriteTimeout <= 0 {
		return fmt.Errorf("feed.write_timeout must be > 0")
	}
	if c.Feed.SendQueueSize <= 0 {
		return fmt.Errorf("feed.send_queue_size must be > 0")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Monitoring.Interval = time.Second
	cfg.Monitoring.TickTimeout = 5 * time.Second
	cfg.Monitoring.HistoryCapacity = 100
	cfg.Monitoring.AlertBuffer = 50
	cfg.Monitoring.RealtimeTTL = 60 * time.Second

	cfg.Thresholds = domain.DefaultThresholds()

	cfg.Prometheus.Enabled = true
	cfg.Prometheus.Path = "/metrics"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.ConnectAttempts = 3
	cfg.Redis.CallTimeout = 500 * time.Millisecond
	cfg.Redis.PublishEvents = false

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.Feed.ConnectionsPerMinute = 60
	cfg.RateLimiting.Feed.MaxConcurrent = 0

	cfg.Feed.PingInterval = 30 * time.Second
	cfg.Feed.PongTimeout = 60 * time.Second
	cfg.Feed.WriteTimeout = 10 * time.Second
	cfg.Feed.SendQueueSize = 64

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("QOSMON_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("QOSMON_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if interval := os.Getenv("QOSMON_MONITORING_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			c.Monitoring.Interval = d
		}
	}
	if addr := os.Getenv("QOSMON_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
	if password := os.Getenv("QOSMON_REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}
	if enabled := os.Getenv("QOSMON_TRACING_ENABLED"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			c.Tracing.Enabled = v
		}
	}
	if url := os.Getenv("QOSMON_JAEGER_URL"); url != "" {
		c.Tracing.JaegerURL = url
	}
}
