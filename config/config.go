// Package config loads the service configuration from the environment.
//
// An optional .env file is read first, then real environment variables
// override it. Configuration is environment-only: there are no CLI flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Rate limiting constants. These match the abuse policy the service was
// deployed with: at most 5 accepted attempts per client per 15 minutes.
const (
	RateLimitWindowSeconds = 900
	RateLimitMax           = 5
)

// defaultOrigins is the origin allow-list used when ALLOWED_ORIGINS is unset.
var defaultOrigins = []string{
	"https://www.quartzclinique.com",
	"https://quartzclinique.com",
	"http://localhost",
	"http://127.0.0.1",
}

// Relay holds the SMTP relay settings for outbound dispatch.
type Relay struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	ToEmail   string
	Subject   string
	BCC       string
}

// Missing reports whether the relay is unusable: host, username and
// password are all mandatory. Detected before any dispatch is attempted.
func (r Relay) Missing() bool {
	return r.Host == "" || r.Username == "" || r.Password == ""
}

// Config is the loaded configuration. Values are read once at startup.
type Config struct {
	k *koanf.Koanf
}

// Load reads the optional .env file at envPath (ignored when absent), then
// layers the process environment on top.
func Load(envPath string) (*Config, error) {
	k := koanf.New(".")

	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			if err := k.Load(file.Provider(envPath), dotenv.Parser()); err != nil {
				return nil, fmt.Errorf("loading %s: %w", envPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	return &Config{k: k}, nil
}

func (c *Config) str(key, fallback string) string {
	if v := strings.TrimSpace(c.k.String(key)); v != "" {
		return v
	}
	return fallback
}

// Addr returns the listen address, ":8080" unless PORT overrides it.
func (c *Config) Addr() string {
	return ":" + c.str("PORT", "8080")
}

// StorageDir returns the directory holding the rate-limit and log files,
// creating it with owner-only permissions if needed.
func (c *Config) StorageDir() (string, error) {
	dir := c.str("MAIL_PROTECT_DIR", filepath.Join(os.TempDir(), "quartz_mail"))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating storage dir: %w", err)
	}
	return dir, nil
}

// AllowedOrigins returns the scheme://host origin allow-list, lowercased.
func (c *Config) AllowedOrigins() []string {
	raw := c.k.String("ALLOWED_ORIGINS")
	if strings.TrimSpace(raw) == "" {
		return defaultOrigins
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.ToLower(strings.TrimSpace(o)); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Relay returns the SMTP relay settings. Optional fields fall back the way
// the production deployment expects: from-address defaults to the relay
// username.
func (c *Config) Relay() Relay {
	username := c.str("SMTP_USERNAME", "")
	port := c.k.Int("SMTP_PORT")
	if port == 0 {
		port = 465
	}
	return Relay{
		Host:      c.str("SMTP_HOST", ""),
		Port:      port,
		Username:  username,
		Password:  c.str("SMTP_PASSWORD", ""),
		FromEmail: c.str("SMTP_FROM_EMAIL", username),
		FromName:  c.str("SMTP_FROM_NAME", "Quartz Clinique"),
		ToEmail:   c.str("SMTP_TO_EMAIL", "contact@quartzclinique.com"),
		Subject:   c.str("SMTP_SUBJECT", "Quartz Clinique - Partnership Form"),
		BCC:       c.str("SMTP_BCC", ""),
	}
}

// RateLimitBackend selects the rate-limit store: "file" (default),
// "memory", or "redis".
func (c *Config) RateLimitBackend() string {
	return strings.ToLower(c.str("RATE_LIMIT_STORE", "file"))
}

// RedisURL returns the Redis address for the redis rate-limit backend.
func (c *Config) RedisURL() string {
	return c.str("REDIS_URL", "localhost:6379")
}

// RedisPassword returns the Redis password, empty when unauthenticated.
func (c *Config) RedisPassword() string {
	return c.str("REDIS_PASSWORD", "")
}

// RedisDB returns the Redis database index.
func (c *Config) RedisDB() int {
	return c.k.Int("REDIS_DB")
}
