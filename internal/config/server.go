package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DefaultGuidanceScale is the sampling guidance used when none is configured.
const DefaultGuidanceScale = 10.0

// Backend kinds.
const (
	BackendProcedural = "procedural"
	BackendRemote     = "remote"
)

// ServerConfig holds configuration for the text2mesh server.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	ConfigFile     string        `yaml:"-"`
	ShowVersion    bool          `yaml:"-"`
	RedisAddr      string        `yaml:"redis_addr"`
	InstanceID     string        `yaml:"instance_id"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`

	Backend        string   `yaml:"backend"`
	BackendURL     string   `yaml:"backend_url"`
	BackendKey     string   `yaml:"backend_key"`
	Model          string   `yaml:"model"`
	Device         string   `yaml:"device"`
	UseFP16        bool     `yaml:"use_fp16"`
	GuidanceScale  *float64 `yaml:"guidance_scale"`
	MaxConcurrency int      `yaml:"max_concurrency"`
	LoadRetries    int      `yaml:"load_retries"`
	MCP            bool     `yaml:"mcp"`
}

// SetDefaults initializes zero fields of c with built-in defaults.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 5000
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = fmt.Sprintf(":%d", c.Port)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.InstanceID == "" {
		c.InstanceID = defaultInstanceID()
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 5 * time.Minute
	}
	if c.Backend == "" {
		c.Backend = BackendProcedural
	}
	if c.Model == "" {
		c.Model = "text300M"
	}
	if c.Device == "" {
		c.Device = "auto"
	}
	if c.GuidanceScale == nil {
		g := DefaultGuidanceScale
		c.GuidanceScale = &g
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 1
	}
	if c.LoadRetries <= 0 {
		c.LoadRetries = 5
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigPath("server.yaml")
	}
}

// LoadFile populates the config from a YAML file.
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

// ApplyEnv overlays environment variables onto the current config values.
func (c *ServerConfig) ApplyEnv() {
	if v := GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := GetEnv("HOST", ""); v != "" {
		c.Host = v
	}
	if v := GetEnv("PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := GetEnv("METRICS_PORT", ""); v != "" {
		c.MetricsAddr = metricsAddr(v)
	}
	if v := GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := GetEnv("LOG_FORMAT", ""); v != "" {
		c.LogFormat = v
	}
	if v := GetEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
	if v := GetEnv("INSTANCE_ID", ""); v != "" {
		c.InstanceID = v
	}
	if v := GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	if v := GetEnv("REQUEST_TIMEOUT", ""); v != "" {
		if d, err := parseSeconds(v); err == nil {
			c.RequestTimeout = d
		}
	}
	if v := GetEnv("DRAIN_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DrainTimeout = d
		}
	}
	if v := GetEnv("BACKEND", ""); v != "" {
		c.Backend = v
	}
	if v := GetEnv("BACKEND_URL", ""); v != "" {
		c.BackendURL = v
	}
	if v := GetEnv("BACKEND_KEY", ""); v != "" {
		c.BackendKey = v
	}
	if v := GetEnv("MODEL", ""); v != "" {
		c.Model = v
	}
	if v := GetEnv("DEVICE", ""); v != "" {
		c.Device = v
	}
	if v := GetEnv("USE_FP16", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.UseFP16 = b
		}
	}
	if v := GetEnv("GUIDANCE_SCALE", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.GuidanceScale = &f
		}
	}
	if v := GetEnv("MAX_CONCURRENCY", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxConcurrency = n
		}
	}
	if v := GetEnv("LOAD_RETRIES", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LoadRetries = n
		}
	}
	if v := GetEnv("MCP", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.MCP = b
		}
	}
}

// Load resolves the configuration with the precedence flags > environment >
// config file > defaults. A missing config file is not an error.
func Load(name string, args []string) (ServerConfig, error) {
	var early ServerConfig
	early.ApplyEnv()
	pfs := flag.NewFlagSet(name, flag.ContinueOnError)
	pfs.SetOutput(io.Discard)
	early.BindFlags(pfs)
	_ = pfs.Parse(args)
	path := early.ConfigFile
	if path == "" {
		path = DefaultConfigPath("server.yaml")
	}

	var c ServerConfig
	if err := c.LoadFile(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return c, err
	}
	c.ConfigFile = path
	c.ApplyEnv()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	c.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	c.SetDefaults()
	return c, c.Validate()
}

// BindFlags binds command line flags using the current config values as
// defaults so main can call flag.Parse().
func (c *ServerConfig) BindFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.ShowVersion, "version", c.ShowVersion, "print version and exit")
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "server config file path")
	fs.StringVar(&c.Host, "host", c.Host, "interface to bind the public API to")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP listen port for the public API")
	fs.Func("metrics-port", "Prometheus metrics listen address or port; defaults to the value of --port", func(v string) error {
		c.MetricsAddr = metricsAddr(v)
		return nil
	})
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log encoding (console, json)")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for server state")
	fs.StringVar(&c.InstanceID, "instance-id", c.InstanceID, "name of this server in the shared state store (defaults to the hostname)")
	fs.Func("allowed-origins", "comma separated list of allowed CORS origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
	fs.Func("request-timeout", "per request generation timeout in seconds; 0 disables it", func(v string) error {
		d, err := parseSeconds(v)
		if err != nil {
			return err
		}
		c.RequestTimeout = d
		return nil
	})
	fs.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for in-flight generations on shutdown (-1 to wait indefinitely)")
	fs.StringVar(&c.Backend, "backend", c.Backend, "generation backend (procedural, remote)")
	fs.StringVar(&c.BackendURL, "backend-url", c.BackendURL, "base URL of the remote inference worker")
	fs.StringVar(&c.BackendKey, "backend-key", c.BackendKey, "bearer key presented to the remote inference worker")
	fs.StringVar(&c.Model, "model", c.Model, "pretrained model name to load at start-up")
	fs.StringVar(&c.Device, "device", c.Device, "compute device (auto, cuda, cpu)")
	fs.BoolVar(&c.UseFP16, "use-fp16", c.UseFP16, "load the diffusion configuration in half precision")
	fs.Func("guidance-scale", "classifier-free guidance scale used for sampling (default 10)", func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.GuidanceScale = &f
		return nil
	})
	fs.IntVar(&c.MaxConcurrency, "max-concurrency", c.MaxConcurrency, "number of generations allowed to run on the pipeline at once")
	fs.IntVar(&c.LoadRetries, "load-retries", c.LoadRetries, "attempts to load the model before giving up")
	fs.BoolVar(&c.MCP, "mcp", c.MCP, "expose the MCP endpoint on /mcp")
}

// Validate reports configuration errors that would prevent start-up.
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Backend {
	case BackendProcedural:
	case BackendRemote:
		if c.BackendURL == "" {
			return fmt.Errorf("backend %q requires backend_url", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if g := c.Guidance(); g < 0 || math.IsNaN(g) || math.IsInf(g, 0) {
		return fmt.Errorf("invalid guidance_scale %v", g)
	}
	switch strings.ToLower(c.Device) {
	case "auto", "cuda", "cpu":
	default:
		return fmt.Errorf("unknown device %q", c.Device)
	}
	return nil
}

// Guidance returns the configured guidance scale. Zero is a valid setting.
func (c *ServerConfig) Guidance() float64 {
	if c.GuidanceScale == nil {
		return DefaultGuidanceScale
	}
	return *c.GuidanceScale
}

// ListenAddr returns the host:port the public API binds to.
func (c *ServerConfig) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MetricsOnMainPort reports whether /metrics is served by the public router.
func (c *ServerConfig) MetricsOnMainPort() bool {
	return c.MetricsAddr == "" || c.MetricsAddr == fmt.Sprintf(":%d", c.Port)
}

// defaultInstanceID names the process after its host, falling back to a
// random id when the hostname is unavailable.
func defaultInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return uuid.NewString()
}

func metricsAddr(v string) string {
	if strings.Contains(v, ":") {
		return v
	}
	return ":" + v
}

func parseSeconds(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}
