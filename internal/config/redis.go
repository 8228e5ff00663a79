package config

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisConfig describes the optional Redis server backing rate limiting,
// the calendar response cache and the sweeper lease.
type RedisConfig struct {
	Enabled  bool   `env:"ENABLED" envDefault:"true"`
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Host     string `env:"HOST"` // with PORT, takes precedence over ADDR
	Port     string `env:"PORT"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	TLS      bool   `env:"TLS" envDefault:"false"`
}

// NewRedisClient instantiates a Redis client and pings it with a short
// timeout.  It returns nil when Redis is disabled or unreachable; callers
// degrade gracefully by skipping caching, rate limiting and the sweep lease.
func NewRedisClient(cfg RedisConfig, log logrus.FieldLogger) *redis.Client {
	if !cfg.Enabled {
		return nil
	}
	addr := cfg.Addr
	if cfg.Host != "" && cfg.Port != "" {
		addr = cfg.Host + ":" + cfg.Port
	}
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).WithField("addr", addr).Warn("redis unavailable; cache, rate limit and sweep lease disabled")
		_ = client.Close()
		return nil
	}
	return client
}
