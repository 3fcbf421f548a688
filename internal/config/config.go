package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/raakeshmj/keygate/internal/reliability"
)

// Config is built once at start-up and passed down; nothing reads the
// environment after Load.
type Config struct {
	Server    ServerConfig    `envconfig:"SERVER"`
	Store     StoreConfig     `envconfig:"STORE"`
	Session   SessionConfig   `envconfig:"SESSION"`
	RateLimit RateLimitConfig `envconfig:"RATELIMIT"`
	Log       LogConfig       `envconfig:"LOG"`

	SQLAPIURL      string   `envconfig:"URL_API_SQL"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
	Debug          Flag     `envconfig:"IS_DEBUG" default:"true"`
	RedisAddr      string   `envconfig:"REDIS_ADDR"`
}

type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
}

type StoreConfig struct {
	Driver   string        `envconfig:"DRIVER" default:"http"`
	Method   string        `envconfig:"METHOD" default:"POST"`
	Timeout  time.Duration `envconfig:"TIMEOUT" default:"10s"`
	MySQLDSN string        `envconfig:"MYSQL_DSN"`

	BreakerFailures int64         `envconfig:"BREAKER_FAILURES" default:"5"`
	BreakerCooldown time.Duration `envconfig:"BREAKER_COOLDOWN" default:"30s"`
	BreakerStrategy string        `envconfig:"BREAKER_STRATEGY" default:"fail_open"`
}

type SessionConfig struct {
	Secret   string `envconfig:"SECRET" required:"true"`
	SameSite string `envconfig:"SAMESITE" default:"lax"`
	Secure   bool   `envconfig:"SECURE" default:"true"`
}

type RateLimitConfig struct {
	Enabled     bool    `envconfig:"ENABLED" default:"true"`
	ClientRate  float64 `envconfig:"CLIENT_RATE" default:"5"`
	ClientBurst int     `envconfig:"CLIENT_BURST" default:"10"`
	AuthRate    float64 `envconfig:"AUTH_RATE" default:"1"`
	AuthBurst   int     `envconfig:"AUTH_BURST" default:"5"`
}

type LogConfig struct {
	Level string `envconfig:"LEVEL" default:"info"`
}

// Flag is a boolean that also accepts "1" and "yes".
type Flag bool

func (f *Flag) Decode(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes":
		*f = true
	default:
		*f = false
	}
	return nil
}

const (
	DriverHTTP   = "http"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	cfg.AllowedOrigins = trimAll(cfg.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Session.Secret) == "" {
		errs = append(errs, errors.New("SESSION_SECRET is required"))
	}

	switch c.Store.Driver {
	case DriverHTTP:
		u, err := url.Parse(c.SQLAPIURL)
		if strings.TrimSpace(c.SQLAPIURL) == "" {
			errs = append(errs, errors.New("Missing required environment variable: URL_API_SQL"))
		} else if err != nil || !u.IsAbs() {
			errs = append(errs, errors.New("Invalid URL_API_SQL. Expected a valid absolute URL."))
		}
		if m := strings.ToUpper(c.Store.Method); m != http.MethodPost && m != http.MethodGet {
			errs = append(errs, fmt.Errorf("STORE_METHOD must be POST or GET, got %q", c.Store.Method))
		}
	case DriverMySQL:
		if c.Store.MySQLDSN == "" {
			errs = append(errs, errors.New("STORE_MYSQL_DSN is required when STORE_DRIVER=mysql"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}

	if _, err := reliability.ParseStrategy(c.Store.BreakerStrategy); err != nil {
		errs = append(errs, fmt.Errorf("STORE_BREAKER_STRATEGY: %w", err))
	}
	if _, err := c.Session.SameSiteMode(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("SERVER_PORT must not be empty"))
	}
	return errors.Join(errs...)
}

// SameSiteMode maps SESSION_SAMESITE to the cookie attribute.
func (s SessionConfig) SameSiteMode() (http.SameSite, error) {
	switch strings.ToLower(s.SameSite) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	}
	return 0, fmt.Errorf("SESSION_SAMESITE must be lax, none or strict, got %q", s.SameSite)
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
