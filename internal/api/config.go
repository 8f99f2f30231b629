package api

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Config holds server configuration.
type Config struct {
	Port              int
	RateLimitRequests int           // Requests per minute (0 = disabled)
	RateLimitBurst    int           // Burst size
	Auth              AuthConfig    // Authentication configuration
	AllowedOrigins    []string      // CORS allowed origins (empty = allow all)
	CacheTTL          time.Duration // Lifetime of a rendered passage (0 = no expiry)
	CacheEntries      int           // Rendered passages kept in memory
	Hebrew            bool          // Default language when a request does not say
	Version           string
}

// DefaultConfig returns the settings used by `sefer serve`.
func DefaultConfig() Config {
	return Config{
		Port:              8080,
		RateLimitRequests: 120,
		RateLimitBurst:    20,
		CacheTTL:          time.Hour,
		CacheEntries:      1024,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var result *multierror.Error
	if c.Port < 0 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.RateLimitRequests < 0 || c.RateLimitBurst < 0 {
		result = multierror.Append(result, fmt.Errorf("rate limit must not be negative"))
	}
	if c.CacheTTL < 0 {
		result = multierror.Append(result, fmt.Errorf("cache ttl must not be negative"))
	}
	if err := ValidateAuthConfig(c.Auth); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
