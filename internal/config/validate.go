package config

import (
	"errors"
	"fmt"
)

// Validate checks the fields a running server cannot limp along without.
// Redis is deliberately not required: the cache degrades to a no-op.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	if c.Queue.MaxSize <= 0 {
		return errors.New("queue.max_size must be a positive integer")
	}
	if c.Queue.AvgWindow <= 0 {
		return errors.New("queue.avg_window must be a positive integer")
	}
	if c.Redis.Address != "" && c.Redis.ResultTTLSeconds <= 0 {
		return errors.New("redis.result_ttl_seconds must be positive when Redis is configured")
	}
	if c.Cleanup.IntervalSeconds <= 0 {
		return errors.New("cleanup.interval_seconds must be positive")
	}
	if c.Cleanup.MaxAgeSeconds <= 0 {
		return errors.New("cleanup.max_age_seconds must be positive")
	}
	if c.Query.StaleAfterSeconds <= 0 {
		return errors.New("query.stale_after_seconds must be positive")
	}
	return nil
}
