package config

import (
	"strings"
	"time"
)

// CacheConfig configures the Redis response cache used for calendar reads.
// Cached availability may lag behind holds by at most TTL, which is why the
// default is a few seconds only.
type CacheConfig struct {
	Enabled      bool          `env:"ENABLED" envDefault:"true"`
	Methods      []string      `env:"METHODS" envDefault:"GET" envSeparator:","`
	TTL          time.Duration `env:"TTL" envDefault:"5s"`
	KeyStrategy  string        `env:"KEY_STRATEGY" envDefault:"route_query"`
	Prefix       string        `env:"PREFIX" envDefault:"cache"`
	MaxBodyBytes int           `env:"MAX_BODY_BYTES" envDefault:"1048576"`
}

// MethodSet returns the cacheable HTTP methods upper-cased.
func (c CacheConfig) MethodSet() map[string]bool {
	m := make(map[string]bool, len(c.Methods))
	for _, p := range c.Methods {
		if p = strings.TrimSpace(strings.ToUpper(p)); p != "" {
			m[p] = true
		}
	}
	return m
}
