package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/vango-dev/reflex/internal/errors"
	"gopkg.in/yaml.v3"
)

const (
	// BaseName is the configuration file name without extension.
	BaseName = "reflex"

	// DefaultAddress is the default listen address.
	DefaultAddress = ":8080"

	// DefaultCablePath is the default websocket endpoint.
	DefaultCablePath = "/cable"

	// DefaultMetricsPath is the default Prometheus endpoint.
	DefaultMetricsPath = "/metrics"

	// DefaultPermanentAttribute marks elements clients keep during morphs.
	DefaultPermanentAttribute = "data-reflex-permanent"
)

// FileNames lists the configuration files Load looks for, in order.
var FileNames = []string{BaseName + ".json", BaseName + ".toml", BaseName + ".yaml", BaseName + ".yml"}

// Session store drivers.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreS3       = "s3"
)

// Broadcaster drivers.
const (
	BroadcastMemory = "memory"
	BroadcastRedis  = "redis"
)

// Config represents the complete reflex configuration file.
type Config struct {
	// Name is the application name.
	Name string `json:"name,omitempty" toml:"name,omitempty" yaml:"name,omitempty"`

	// Server contains HTTP and websocket settings.
	Server ServerConfig `json:"server" toml:"server" yaml:"server"`

	// Reflex contains dispatch settings.
	Reflex ReflexConfig `json:"reflex" toml:"reflex" yaml:"reflex"`

	// Session contains session store settings.
	Session SessionConfig `json:"session" toml:"session" yaml:"session"`

	// Broadcast selects how messages reach the connections of a stream.
	Broadcast BroadcastConfig `json:"broadcast" toml:"broadcast" yaml:"broadcast"`

	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `json:"metrics" toml:"metrics" yaml:"metrics"`

	// Tracing contains OpenTelemetry settings.
	Tracing TracingConfig `json:"tracing" toml:"tracing" yaml:"tracing"`

	// Logging contains log output settings.
	Logging LoggingConfig `json:"logging" toml:"logging" yaml:"logging"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains transport settings.
type ServerConfig struct {
	Address           string   `json:"address,omitempty" toml:"address,omitempty" yaml:"address,omitempty"`
	CablePath         string   `json:"cablePath,omitempty" toml:"cablePath,omitempty" yaml:"cablePath,omitempty"`
	ReadBufferSize    int      `json:"readBufferSize,omitempty" toml:"readBufferSize,omitempty" yaml:"readBufferSize,omitempty"`
	WriteBufferSize   int      `json:"writeBufferSize,omitempty" toml:"writeBufferSize,omitempty" yaml:"writeBufferSize,omitempty"`
	ReadTimeout       Duration `json:"readTimeout,omitempty" toml:"readTimeout,omitempty" yaml:"readTimeout,omitempty"`
	WriteTimeout      Duration `json:"writeTimeout,omitempty" toml:"writeTimeout,omitempty" yaml:"writeTimeout,omitempty"`
	HeartbeatInterval Duration `json:"heartbeatInterval,omitempty" toml:"heartbeatInterval,omitempty" yaml:"heartbeatInterval,omitempty"`
	ShutdownTimeout   Duration `json:"shutdownTimeout,omitempty" toml:"shutdownTimeout,omitempty" yaml:"shutdownTimeout,omitempty"`

	// MaxMessageSize is the largest accepted invocation in bytes.
	MaxMessageSize int64 `json:"maxMessageSize,omitempty" toml:"maxMessageSize,omitempty" yaml:"maxMessageSize,omitempty"`

	// RateLimit is the sustained invocations per second per connection.
	RateLimit float64 `json:"rateLimit,omitempty" toml:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`
	RateBurst int     `json:"rateBurst,omitempty" toml:"rateBurst,omitempty" yaml:"rateBurst,omitempty"`

	// AllowedOrigins lists extra websocket origins. Same-origin requests are
	// always allowed.
	AllowedOrigins []string `json:"allowedOrigins,omitempty" toml:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"`

	TrustedProxies []string `json:"trustedProxies,omitempty" toml:"trustedProxies,omitempty" yaml:"trustedProxies,omitempty"`
	SecureCookies  bool     `json:"secureCookies,omitempty" toml:"secureCookies,omitempty" yaml:"secureCookies,omitempty"`
}

// ReflexConfig contains dispatch settings.
type ReflexConfig struct {
	// PermanentAttribute names the attribute of subtrees clients keep
	// during morphs.
	PermanentAttribute string `json:"permanentAttribute,omitempty" toml:"permanentAttribute,omitempty" yaml:"permanentAttribute,omitempty"`

	// DefaultChannel is the stream channel of connections that name none.
	DefaultChannel string `json:"defaultChannel,omitempty" toml:"defaultChannel,omitempty" yaml:"defaultChannel,omitempty"`
}

// SessionConfig contains session store settings.
type SessionConfig struct {
	// Store is one of memory, redis, postgres, sqlite or s3.
	Store  string   `json:"store,omitempty" toml:"store,omitempty" yaml:"store,omitempty"`
	Cookie string   `json:"cookie,omitempty" toml:"cookie,omitempty" yaml:"cookie,omitempty"`
	TTL    Duration `json:"ttl,omitempty" toml:"ttl,omitempty" yaml:"ttl,omitempty"`

	// DSN is the database connection string for postgres and sqlite.
	DSN string `json:"dsn,omitempty" toml:"dsn,omitempty" yaml:"dsn,omitempty"`

	// Addr is the Redis address.
	Addr string `json:"addr,omitempty" toml:"addr,omitempty" yaml:"addr,omitempty"`

	// Bucket is the S3 bucket.
	Bucket string `json:"bucket,omitempty" toml:"bucket,omitempty" yaml:"bucket,omitempty"`

	// Prefix is the Redis key or S3 object prefix.
	Prefix string `json:"prefix,omitempty" toml:"prefix,omitempty" yaml:"prefix,omitempty"`

	// Table is the SQL table name.
	Table string `json:"table,omitempty" toml:"table,omitempty" yaml:"table,omitempty"`
}

// BroadcastConfig selects the broadcaster.
type BroadcastConfig struct {
	// Driver is memory or redis.
	Driver string `json:"driver,omitempty" toml:"driver,omitempty" yaml:"driver,omitempty"`
	Addr   string `json:"addr,omitempty" toml:"addr,omitempty" yaml:"addr,omitempty"`
	Prefix string `json:"prefix,omitempty" toml:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled,omitempty" toml:"enabled,omitempty" yaml:"enabled,omitempty"`
	Namespace string `json:"namespace,omitempty" toml:"namespace,omitempty" yaml:"namespace,omitempty"`
	Path      string `json:"path,omitempty" toml:"path,omitempty" yaml:"path,omitempty"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Enabled    bool   `json:"enabled,omitempty" toml:"enabled,omitempty" yaml:"enabled,omitempty"`
	TracerName string `json:"tracerName,omitempty" toml:"tracerName,omitempty" yaml:"tracerName,omitempty"`
	IncludeURL bool   `json:"includeURL,omitempty" toml:"includeURL,omitempty" yaml:"includeURL,omitempty"`

	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `json:"endpoint,omitempty" toml:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Insecure bool   `json:"insecure,omitempty" toml:"insecure,omitempty" yaml:"insecure,omitempty"`

	// SampleRate is the fraction of invocations traced, 0 to 1.
	SampleRate float64 `json:"sampleRate,omitempty" toml:"sampleRate,omitempty" yaml:"sampleRate,omitempty"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty" toml:"level,omitempty" yaml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" toml:"format,omitempty" yaml:"format,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Name: "reflex",
		Server: ServerConfig{
			Address:           DefaultAddress,
			CablePath:         DefaultCablePath,
			ReadBufferSize:    4096,
			WriteBufferSize:   4096,
			ReadTimeout:       Duration(60 * time.Second),
			WriteTimeout:      Duration(10 * time.Second),
			HeartbeatInterval: Duration(30 * time.Second),
			ShutdownTimeout:   Duration(30 * time.Second),
			MaxMessageSize:    1 << 20,
			RateLimit:         10,
			RateBurst:         20,
		},
		Reflex: ReflexConfig{
			PermanentAttribute: DefaultPermanentAttribute,
		},
		Session: SessionConfig{
			Store:  StoreMemory,
			Cookie: "reflex_session",
			TTL:    Duration(24 * time.Hour),
		},
		Broadcast: BroadcastConfig{
			Driver: BroadcastMemory,
			Prefix: "reflex:",
		},
		Metrics: MetricsConfig{
			Namespace: "reflex",
			Path:      DefaultMetricsPath,
		},
		Tracing: TracingConfig{
			TracerName: "reflex",
			Endpoint:   "localhost:4317",
			SampleRate: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads the first configuration file of FileNames found in dir.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("R041").
		WithDetail("No reflex.json, reflex.toml or reflex.yaml found in " + dir).
		WithSuggestion("Run 'reflex config init' to write one with the defaults")
}

// LoadFile loads configuration from a specific file. The format follows the
// file extension.
func LoadFile(path string) (*Config, error) {
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("R041").
				WithDetail("No configuration file at " + path)
		}
		return nil, errors.New("R040").Wrap(err)
	}

	cfg := New()
	if err := decode(format, data, cfg); err != nil {
		return nil, errors.New("R040").
			WithDetail(fmt.Sprintf("Failed to parse %s: %v", filepath.Base(path), err)).
			WithSuggestion("Check that " + filepath.Base(path) + " is valid " + strings.ToUpper(format)).
			Wrap(err)
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

func formatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json", nil
	case ".toml":
		return "toml", nil
	case ".yaml", ".yml":
		return "yaml", nil
	default:
		return "", errors.New("R043").
			WithDetail("Unsupported configuration file " + filepath.Base(path))
	}
}

func decode(format string, data []byte, cfg *Config) error {
	switch format {
	case "toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	case "yaml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// Save writes the configuration back to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to path in the format of its extension.
func (c *Config) SaveTo(path string) error {
	data, err := c.Marshal(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("R040").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Marshal encodes the configuration in the format of path's extension.
func (c *Config) Marshal(path string) ([]byte, error) {
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch format {
	case "toml":
		err = toml.NewEncoder(&buf).Encode(c)
	case "yaml":
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		err = enc.Encode(c)
		if err == nil {
			err = enc.Close()
		}
	default:
		var data []byte
		data, err = json.MarshalIndent(c, "", "  ")
		buf.Write(data)
		buf.WriteByte('\n')
	}
	if err != nil {
		return nil, errors.New("R040").Wrap(err)
	}
	return buf.Bytes(), nil
}

// Path returns the path the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in fields left empty by the file.
func (c *Config) applyDefaults() {
	d := New()
	if c.Server.Address == "" {
		c.Server.Address = d.Server.Address
	}
	if c.Server.CablePath == "" {
		c.Server.CablePath = d.Server.CablePath
	}
	if c.Server.ReadBufferSize == 0 {
		c.Server.ReadBufferSize = d.Server.ReadBufferSize
	}
	if c.Server.WriteBufferSize == 0 {
		c.Server.WriteBufferSize = d.Server.WriteBufferSize
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = d.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if c.Server.HeartbeatInterval == 0 {
		c.Server.HeartbeatInterval = d.Server.HeartbeatInterval
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if c.Server.MaxMessageSize == 0 {
		c.Server.MaxMessageSize = d.Server.MaxMessageSize
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = d.Server.RateLimit
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = d.Server.RateBurst
	}

	if c.Reflex.PermanentAttribute == "" {
		c.Reflex.PermanentAttribute = d.Reflex.PermanentAttribute
	}

	if c.Session.Store == "" {
		c.Session.Store = d.Session.Store
	}
	c.Session.Store = strings.ToLower(c.Session.Store)
	if c.Session.Cookie == "" {
		c.Session.Cookie = d.Session.Cookie
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = d.Session.TTL
	}

	if c.Broadcast.Driver == "" {
		c.Broadcast.Driver = d.Broadcast.Driver
	}
	c.Broadcast.Driver = strings.ToLower(c.Broadcast.Driver)
	if c.Broadcast.Prefix == "" {
		c.Broadcast.Prefix = d.Broadcast.Prefix
	}
	if c.Broadcast.Driver == BroadcastRedis && c.Broadcast.Addr == "" {
		c.Broadcast.Addr = c.Session.Addr
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = d.Metrics.Path
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = d.Tracing.TracerName
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = d.Tracing.Endpoint
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = d.Tracing.SampleRate
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	invalid := func(detail, suggestion string) error {
		return errors.New("R042").WithDetail(detail).WithSuggestion(suggestion)
	}

	if c.Server.Address == "" {
		return invalid("server.address is empty", `Set an address such as ":8080"`)
	}
	if !strings.HasPrefix(c.Server.CablePath, "/") {
		return invalid("server.cablePath must start with /", `Use "/cable"`)
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return invalid("server.rateLimit and server.rateBurst must not be negative", "")
	}
	if c.Server.MaxMessageSize < 0 {
		return invalid("server.maxMessageSize must not be negative", "")
	}
	if c.Server.HeartbeatInterval >= c.Server.ReadTimeout {
		return invalid(
			fmt.Sprintf("server.heartbeatInterval (%s) must be shorter than server.readTimeout (%s)",
				c.Server.HeartbeatInterval, c.Server.ReadTimeout),
			"Clients are dropped when no pong arrives within the read timeout")
	}

	switch c.Session.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Session.Addr == "" {
			return invalid("session.addr is required for the redis store", `Set "addr": "localhost:6379"`)
		}
	case StorePostgres, StoreSQLite:
		if c.Session.DSN == "" {
			return invalid("session.dsn is required for the "+c.Session.Store+" store", "")
		}
	case StoreS3:
		if c.Session.Bucket == "" {
			return invalid("session.bucket is required for the s3 store", "")
		}
	default:
		return invalid("unknown session.store "+quote(c.Session.Store),
			"Use one of memory, redis, postgres, sqlite, s3")
	}
	if c.Session.TTL < 0 {
		return invalid("session.ttl must not be negative", "")
	}

	switch c.Broadcast.Driver {
	case BroadcastMemory:
	case BroadcastRedis:
		if c.Broadcast.Addr == "" {
			return invalid("broadcast.addr is required for the redis broadcaster", "")
		}
	default:
		return invalid("unknown broadcast.driver "+quote(c.Broadcast.Driver), "Use memory or redis")
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return invalid(fmt.Sprintf("tracing.sampleRate %v is outside 0..1", c.Tracing.SampleRate), "")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("unknown logging.level "+quote(c.Logging.Level), "Use debug, info, warn or error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return invalid("unknown logging.format "+quote(c.Logging.Format), "Use text or json")
	}
	return nil
}

func quote(s string) string {
	return `"` + s + `"`
}
