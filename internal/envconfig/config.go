// Package envconfig reads NNSHOT_* environment variables.
package envconfig

import (
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/born-ml/singleshot/internal/errdefs"
)

// Prefix is prepended to every variable name.
const Prefix = "NNSHOT"

// DefaultTimeout bounds an invoke when neither options nor NNSHOT_TIMEOUT set one.
const DefaultTimeout = 10 * time.Second

// Config holds the process-wide settings.
type Config struct {
	// Timeout bounds a single invoke.
	Timeout time.Duration `split_words:"true" default:"10s"`

	// Backend forces a backend by name instead of picking one by file extension.
	Backend string `split_words:"true"`

	// Threads bounds kernel workers per run. Zero means one per CPU.
	Threads int `split_words:"true" default:"0"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `split_words:"true" default:"info"`

	// LogFormat is console or json.
	LogFormat string `split_words:"true" default:"console"`

	// Addr is the listen address of the HTTP server.
	Addr string `split_words:"true" default:"127.0.0.1:8085"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return Config{}, errdefs.InvalidArgument("environment: %v", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values envconfig cannot.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return errdefs.InvalidArgument("%s_TIMEOUT must be positive, got %s", Prefix, c.Timeout)
	}
	if c.Threads < 0 {
		return errdefs.InvalidArgument("%s_THREADS must not be negative, got %d", Prefix, c.Threads)
	}
	return nil
}

// Timeout returns NNSHOT_TIMEOUT, or DefaultTimeout when it is unset or
// invalid. Each accessor reads only its own variable.
func Timeout() time.Duration {
	var v struct {
		Timeout time.Duration `split_words:"true"`
	}
	if err := envconfig.Process(Prefix, &v); err != nil || v.Timeout <= 0 {
		return DefaultTimeout
	}
	return v.Timeout
}

// Backend returns NNSHOT_BACKEND.
func Backend() string {
	var v struct {
		Backend string `split_words:"true"`
	}
	if err := envconfig.Process(Prefix, &v); err != nil {
		return ""
	}
	return v.Backend
}

// Threads returns NNSHOT_THREADS, or 0 when it is unset or invalid.
func Threads() int {
	var v struct {
		Threads int `split_words:"true"`
	}
	if err := envconfig.Process(Prefix, &v); err != nil || v.Threads < 0 {
		return 0
	}
	return v.Threads
}

// AsMap returns the effective settings keyed by variable name.
func (c Config) AsMap() map[string]string {
	return map[string]string{
		Prefix + "_TIMEOUT":    c.Timeout.String(),
		Prefix + "_BACKEND":    c.Backend,
		Prefix + "_THREADS":    strconv.Itoa(c.Threads),
		Prefix + "_LOG_LEVEL":  c.LogLevel,
		Prefix + "_LOG_FORMAT": c.LogFormat,
		Prefix + "_ADDR":       c.Addr,
	}
}
