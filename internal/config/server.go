package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds configuration for the qscore server. Values resolve
// with precedence defaults < file < env < flags.
type ServerConfig struct {
	Host          string            `yaml:"host"`
	Port          int               `yaml:"port"`
	MultiThreaded bool              `yaml:"multi_threaded"`
	Exclusive     bool              `yaml:"exclusive"`
	Handler       string            `yaml:"handler"`
	HandlerOpts   map[string]string `yaml:"handler_options"`
	Analyzer      string            `yaml:"analyzer"`

	KeepAlive      bool          `yaml:"keep_alive"`
	MaxConnections int           `yaml:"max_connections"`
	MaxFrameBytes  int           `yaml:"max_frame_bytes"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`

	HTTPAddr       string   `yaml:"http_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RedisAddr      string   `yaml:"redis_addr"`
	LogLevel       string   `yaml:"log_level"`
	LogFormat      string   `yaml:"log_format"`
	ConfigFile     string   `yaml:"-"`
}

// SetDefaults initializes c with built-in defaults.
func (c *ServerConfig) SetDefaults() {
	c.Host = "127.0.0.1"
	c.Port = 8765
	c.MultiThreaded = true
	c.Handler = "sample"
	c.Analyzer = "standard"
	c.KeepAlive = true
	c.MaxFrameBytes = 16 << 20
	c.ReadTimeout = 30 * time.Second
	c.IdleTimeout = 2 * time.Minute
	c.WriteTimeout = 30 * time.Second
	c.DrainTimeout = 30 * time.Second
	c.LogLevel = "info"
	c.LogFormat = "console"
	c.ConfigFile = DefaultConfigPath("server.yaml")
}

// Addr is the TCP listen address.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ApplyEnv overlays QSCORE_* environment variables onto c.
func (c *ServerConfig) ApplyEnv() {
	str := func(key string, dst *string) {
		if v := GetEnv(key, ""); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := GetEnv(key, ""); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	integer := func(key string, dst *int) {
		if v := GetEnv(key, ""); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := GetEnv(key, ""); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	str("QSCORE_CONFIG_FILE", &c.ConfigFile)
	str("QSCORE_HOST", &c.Host)
	integer("QSCORE_PORT", &c.Port)
	boolean("QSCORE_MULTI_THREADED", &c.MultiThreaded)
	boolean("QSCORE_EXCLUSIVE", &c.Exclusive)
	str("QSCORE_HANDLER", &c.Handler)
	str("QSCORE_ANALYZER", &c.Analyzer)
	boolean("QSCORE_KEEP_ALIVE", &c.KeepAlive)
	integer("QSCORE_MAX_CONNECTIONS", &c.MaxConnections)
	integer("QSCORE_MAX_FRAME_BYTES", &c.MaxFrameBytes)
	duration("QSCORE_READ_TIMEOUT", &c.ReadTimeout)
	duration("QSCORE_IDLE_TIMEOUT", &c.IdleTimeout)
	duration("QSCORE_WRITE_TIMEOUT", &c.WriteTimeout)
	duration("QSCORE_DRAIN_TIMEOUT", &c.DrainTimeout)
	str("QSCORE_HTTP_ADDR", &c.HTTPAddr)
	str("QSCORE_REDIS_ADDR", &c.RedisAddr)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	if v := GetEnv("QSCORE_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	if v := GetEnv("QSCORE_HANDLER_OPTIONS", ""); v != "" {
		c.HandlerOpts = mergeOptions(c.HandlerOpts, v)
	}
}

// BindFlagsFromCurrent binds flags on fs using the current values as defaults.
func (c *ServerConfig) BindFlagsFromCurrent(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "server config file path")
	fs.StringVar(&c.Host, "host", c.Host, "TCP listen host")
	fs.IntVar(&c.Port, "port", c.Port, "TCP listen port")
	fs.BoolVar(&c.MultiThreaded, "multi-threaded", c.MultiThreaded, "serve each connection on its own goroutine")
	fs.BoolVar(&c.Exclusive, "exclusive", c.Exclusive, "run at most one scoring invocation at a time")
	fs.StringVar(&c.Handler, "handler", c.Handler, "scoring handler name")
	fs.Func("handler-option", "handler option key=value (repeatable)", func(v string) error {
		k, val, ok := strings.Cut(v, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return fmt.Errorf("expected key=value, got %q", v)
		}
		if c.HandlerOpts == nil {
			c.HandlerOpts = map[string]string{}
		}
		c.HandlerOpts[strings.TrimSpace(k)] = strings.TrimSpace(val)
		return nil
	})
	fs.StringVar(&c.Analyzer, "analyzer", c.Analyzer, "analyzer filling the parsed form (standard, whitespace)")
	fs.BoolVar(&c.KeepAlive, "keep-alive", c.KeepAlive, "serve several requests per connection")
	fs.IntVar(&c.MaxConnections, "max-connections", c.MaxConnections, "maximum concurrently served connections in multi-threaded mode (0 = unbounded)")
	fs.IntVar(&c.MaxFrameBytes, "max-frame-bytes", c.MaxFrameBytes, "maximum request frame size")
	fs.DurationVar(&c.ReadTimeout, "read-timeout", c.ReadTimeout, "maximum time to receive one request once started")
	fs.DurationVar(&c.IdleTimeout, "idle-timeout", c.IdleTimeout, "close keep-alive connections idle for this long")
	fs.DurationVar(&c.WriteTimeout, "write-timeout", c.WriteTimeout, "maximum time to write one response")
	fs.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for in-flight connections on shutdown (0 to exit immediately)")
	fs.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr, "HTTP address for health, status, metrics and the JSON/WebSocket API; empty disables it")
	fs.Func("allowed-origins", "comma separated list of allowed CORS origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis URL for shared server state")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format (console, json)")
}

// LoadFile overlays the YAML file at path onto c.
func (c *ServerConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Validate reports configuration errors that must prevent startup.
func (c *ServerConfig) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Handler == "" {
		errs = append(errs, errors.New("handler is required"))
	}
	if c.MaxConnections < 0 {
		errs = append(errs, errors.New("max_connections must be >= 0"))
	}
	if c.MaxFrameBytes <= 0 {
		errs = append(errs, errors.New("max_frame_bytes must be > 0"))
	}
	if c.DrainTimeout < 0 {
		errs = append(errs, errors.New("drain_timeout must be >= 0"))
	}
	return errors.Join(errs...)
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// mergeOptions parses "k=v,k2=v2" into dst.
func mergeOptions(dst map[string]string, v string) map[string]string {
	if dst == nil {
		dst = map[string]string{}
	}
	for _, kv := range splitComma(v) {
		if k, val, ok := strings.Cut(kv, "="); ok {
			dst[strings.TrimSpace(k)] = strings.TrimSpace(val)
		}
	}
	return dst
}
