// Package config loads the cat gallery configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/cat-gallery/pkg/catapi"
	"github.com/Sternrassler/cat-gallery/pkg/gallery"
	"github.com/Sternrassler/cat-gallery/pkg/logging"
)

// Config is the process configuration. Flags in cmd/cat-gallery override it.
type Config struct {
	APIURL      string
	APIKey      string
	UserAgent   string
	RedisURL    string
	PageSize    int
	Order       catapi.Order
	Debounce    time.Duration
	HTTPTimeout time.Duration
	LogLevel    logging.LogLevel
	LogPretty   bool
	LogFile     string
	MetricsAddr string
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	gcfg := gallery.DefaultConfig()
	return Config{
		APIURL:      catapi.DefaultBaseURL,
		UserAgent:   "cat-gallery/0.1.0",
		PageSize:    gcfg.PageSize,
		Order:       gcfg.Order,
		Debounce:    gcfg.Debounce,
		HTTPTimeout: 30 * time.Second,
		LogLevel:    logging.LevelInfo,
	}
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads and validates the configuration through lookup, which has
// the signature of os.LookupEnv.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	cfg, err := Parse(lookup)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Parse reads the configuration like LoadFrom but leaves range checks to
// Validate, so that later overrides can still fix an out-of-range value.
func Parse(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("CAT_API_URL"); ok {
		cfg.APIURL = v
	}
	if v, ok := get("CAT_API_KEY"); ok {
		cfg.APIKey = v
	}
	if v, ok := get("USER_AGENT"); ok {
		cfg.UserAgent = v
	}
	if v, ok := get("REDIS_URL"); ok {
		cfg.RedisURL = v
	}
	if v, ok := get("PAGE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("PAGE_SIZE: %w", err)
		}
		cfg.PageSize = n
	}
	if v, ok := get("ORDER"); ok {
		order, err := catapi.ParseOrder(v)
		if err != nil {
			return cfg, fmt.Errorf("ORDER: %w", err)
		}
		cfg.Order = order
	}
	if v, ok := get("DEBOUNCE"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("DEBOUNCE: %w", err)
		}
		cfg.Debounce = d
	}
	if v, ok := get("HTTP_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("HTTP_TIMEOUT: %w", err)
		}
		cfg.HTTPTimeout = d
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.LogLevel = logging.LogLevel(strings.ToLower(v))
	}
	if v, ok := get("LOG_PRETTY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("LOG_PRETTY: %w", err)
		}
		cfg.LogPretty = b
	}
	if v, ok := get("LOG_FILE"); ok {
		cfg.LogFile = v
	}
	if v, ok := get("METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}

	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api url must be an absolute http(s) url (got %q)", c.APIURL)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent is required")
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("http timeout must be >= 0 (got %s)", c.HTTPTimeout)
	}
	return c.Gallery().Validate()
}

// Gallery returns the controller configuration.
func (c Config) Gallery() gallery.Config {
	return gallery.Config{
		PageSize: c.PageSize,
		Order:    c.Order,
		Debounce: c.Debounce,
	}
}

// CatAPI returns the client configuration without a redis client.
func (c Config) CatAPI() catapi.Config {
	cfg := catapi.DefaultConfig(c.UserAgent)
	cfg.BaseURL = c.APIURL
	cfg.APIKey = c.APIKey
	cfg.Timeout = c.HTTPTimeout
	return cfg
}

// Logging returns the logger configuration.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.LogLevel
	cfg.Pretty = c.LogPretty
	cfg.File = c.LogFile
	return cfg
}
