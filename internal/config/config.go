package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"

	log "github.com/sirupsen/logrus" // Use logrus
)

type Config struct {
	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Auth struct {
		// Key, when non-empty, is required as a bearer token on the
		// generation endpoints.
		Key string `mapstructure:"key"`
	} `mapstructure:"auth"`

	Redis struct {
		Address  string `mapstructure:"address"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		// Prefix namespaces result keys so several deployments can share
		// one Redis instance.
		Prefix string `mapstructure:"prefix"`
		// ResultTTLSeconds bounds how long finished results stay cached.
		ResultTTLSeconds int `mapstructure:"result_ttl_seconds"`
	} `mapstructure:"redis"`

	Queue struct {
		MaxSize        int     `mapstructure:"max_size"`
		AvgWindow      int     `mapstructure:"avg_window"`
		InitialAvgSecs float64 `mapstructure:"initial_avg_secs"`
	} `mapstructure:"queue"`

	Generation struct {
		// TimeoutSeconds is kept as a string because deployments set it
		// through env vars; Timeout() parses it defensively.
		TimeoutSeconds string `mapstructure:"timeout_seconds"`
		OutputDir      string `mapstructure:"output_dir"`
		ModelPath      string `mapstructure:"model_path"`
	} `mapstructure:"generation"`

	Cleanup struct {
		IntervalSeconds int `mapstructure:"interval_seconds"`
		MaxAgeSeconds   int `mapstructure:"max_age_seconds"`
	} `mapstructure:"cleanup"`

	Query struct {
		// StaleAfterSeconds marks a cached in-progress entry as failed
		// once its create time is older than this.
		StaleAfterSeconds int `mapstructure:"stale_after_seconds"`
	} `mapstructure:"query"`

	Audit struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"audit"`

	// Env tags job records and cache entries with the deployment name.
	Env string `mapstructure:"env"`
}

// Timeout parses Generation.TimeoutSeconds, falling back to 600s when
// the value is missing or malformed. A bad env var must never prevent
// the service from starting.
func (c *Config) Timeout() time.Duration {
	const fallback = 600 * time.Second
	raw := c.Generation.TimeoutSeconds
	if raw == "" {
		return fallback
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		log.Warnf("invalid generation timeout %q, using %s", raw, fallback)
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}

// ResultTTL returns the cache TTL as a duration.
func (c *Config) ResultTTL() time.Duration {
	return time.Duration(c.Redis.ResultTTLSeconds) * time.Second
}

// CleanupInterval returns the sweep cadence as a duration.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Cleanup.IntervalSeconds) * time.Second
}

// MaxJobAge returns the retention window for finished jobs.
func (c *Config) MaxJobAge() time.Duration {
	return time.Duration(c.Cleanup.MaxAgeSeconds) * time.Second
}

// StaleAfter returns the cached-entry staleness window.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Query.StaleAfterSeconds) * time.Second
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".") // Look for config.yaml in the current directory

	setDefaults()

	// Allow Viper to read environment variables
	viper.AutomaticEnv()

	// Explicit bindings for the env vars deployments actually set, so no
	// prefix/replacer convention is needed.
	viper.BindEnv("server.host", "MAESTRO_HOST")
	viper.BindEnv("server.port", "MAESTRO_PORT")
	viper.BindEnv("auth.key", "MAESTRO_AUTH_KEY")
	viper.BindEnv("redis.address", "REDIS_ADDRESS")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("queue.max_size", "MAESTRO_QUEUE_MAXSIZE")
	viper.BindEnv("generation.timeout_seconds", "MAESTRO_GENERATION_TIMEOUT")
	viper.BindEnv("generation.output_dir", "MAESTRO_OUTPUT_DIR")
	viper.BindEnv("generation.model_path", "MAESTRO_MODEL_PATH")
	viper.BindEnv("audit.dir", "MAESTRO_AUDIT_DIR")
	viper.BindEnv("env", "MAESTRO_ENV")

	if err := viper.ReadInConfig(); err != nil {
		// It's okay if the config file doesn't exist, Viper might rely
		// solely on defaults and env vars.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8019)
	viper.SetDefault("redis.prefix", "maestro_v1_")
	viper.SetDefault("redis.result_ttl_seconds", 7*24*3600)
	viper.SetDefault("queue.max_size", 200)
	viper.SetDefault("queue.avg_window", 50)
	viper.SetDefault("queue.initial_avg_secs", 5.0)
	viper.SetDefault("cleanup.interval_seconds", 300)
	viper.SetDefault("cleanup.max_age_seconds", 86400)
	viper.SetDefault("query.stale_after_seconds", 3600)
	viper.SetDefault("generation.output_dir", "./outputs")
	viper.SetDefault("env", "development")
}
