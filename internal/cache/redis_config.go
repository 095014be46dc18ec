package cache

import (
	"crypto/tls"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// RedisConfig locates the shared decision cache. Keys are written as
// KeyPrefix + decision key, so several deployments can share one database.
type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	TLS       bool   `yaml:"tls"`
	KeyPrefix string `yaml:"key_prefix"`

	// TTL bounds how long a shared decision outlives its rule set generation
	TTL time.Duration `yaml:"ttl"`

	PoolSize     int           `yaml:"pool_size"`
	PoolTimeout  time.Duration `yaml:"pool_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultRedisConfig returns the settings for a local Redis
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		KeyPrefix:    "permrules:",
		TTL:          5 * time.Minute,
		PoolSize:     10,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// UnmarshalYAML decodes over the defaults so a partial section is usable
func (c *RedisConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain RedisConfig
	*c = *DefaultRedisConfig()
	return value.Decode((*plain)(c))
}

// Validate checks the configuration for validity
func (c *RedisConfig) Validate() error {
	switch {
	case c.Host == "":
		return ErrInvalidConfig("host is required")
	case c.Port <= 0 || c.Port > 65535:
		return ErrInvalidConfig("port must be between 1 and 65535")
	case c.PoolSize <= 0:
		return ErrInvalidConfig("pool_size must be greater than 0")
	case c.TTL <= 0:
		return ErrInvalidConfig("ttl must be greater than 0")
	}
	return nil
}

// Addr returns host:port
func (c *RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *RedisConfig) options() *redis.Options {
	opts := &redis.Options{
		Addr:            c.Addr(),
		Password:        c.Password,
		DB:              c.DB,
		PoolSize:        c.PoolSize,
		PoolTimeout:     c.PoolTimeout,
		ConnMaxIdleTime: c.IdleTimeout,
		DialTimeout:     c.DialTimeout,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
	}
	if c.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: c.Host}
	}
	return opts
}
