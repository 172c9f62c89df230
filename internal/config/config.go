package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vango-dev/cellkit/internal/errors"
)

const (
	// ConfigName is the base name searched for when no path is given.
	ConfigName = "cellkit"

	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "CELLKIT"

	// DefaultInspectAddr is the default inspector listen address.
	DefaultInspectAddr = "127.0.0.1:7070"
)

// Config is the complete CLI configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Loop     LoopConfig     `mapstructure:"loop"`
	Inspect  InspectConfig  `mapstructure:"inspect"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	S3       S3Config       `mapstructure:"s3"`
	Bench    BenchConfig    `mapstructure:"bench"`

	// path is the file the configuration was read from, empty for defaults.
	path string
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format is text or json.
	Format string `mapstructure:"format"`
}

// LoopConfig configures the cooperative loop.
type LoopConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

// InspectConfig configures the inspector server.
type InspectConfig struct {
	Addr string `mapstructure:"addr"`
	// AllowAnyOrigin disables the same-origin websocket check.
	AllowAnyOrigin bool          `mapstructure:"allow_any_origin"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

// MetricsConfig configures the Prometheus observer.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// TracingConfig configures the OpenTelemetry observer.
type TracingConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	TracerName string `mapstructure:"tracer_name"`
}

// SnapshotConfig configures catalog snapshots.
type SnapshotConfig struct {
	// Target is a directory or an s3://bucket/prefix URL. Empty disables snapshots.
	Target string `mapstructure:"target"`
	Key    string `mapstructure:"key"`
	// Format is json or yaml.
	Format string `mapstructure:"format"`
	// Interval enables periodic saves when positive.
	Interval time.Duration `mapstructure:"interval"`
}

// S3Config configures the S3 client used for s3:// snapshot targets.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	PathStyle       bool   `mapstructure:"path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// BenchConfig sets the default bench graph shape.
type BenchConfig struct {
	Depth      int `mapstructure:"depth"`
	Fanout     int `mapstructure:"fanout"`
	Iterations int `mapstructure:"iterations"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Log:  LogConfig{Level: "info", Format: "text"},
		Loop: LoopConfig{QueueSize: 1024},
		Inspect: InspectConfig{
			Addr:         DefaultInspectAddr,
			WriteTimeout: 10 * time.Second,
			PingInterval: 30 * time.Second,
			SendBuffer:   64,
		},
		Metrics:  MetricsConfig{Enabled: true, Namespace: "cellkit", Path: "/metrics"},
		Tracing:  TracingConfig{TracerName: "cellkit"},
		Snapshot: SnapshotConfig{Key: "catalog", Format: "json"},
		S3:       S3Config{Region: "us-east-1"},
		Bench:    BenchConfig{Depth: 100, Fanout: 100, Iterations: 10000},
	}
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// SetDefaults registers every key of Default with v.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("loop.queue_size", d.Loop.QueueSize)

	v.SetDefault("inspect.addr", d.Inspect.Addr)
	v.SetDefault("inspect.allow_any_origin", d.Inspect.AllowAnyOrigin)
	v.SetDefault("inspect.write_timeout", d.Inspect.WriteTimeout)
	v.SetDefault("inspect.ping_interval", d.Inspect.PingInterval)
	v.SetDefault("inspect.send_buffer", d.Inspect.SendBuffer)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.tracer_name", d.Tracing.TracerName)

	v.SetDefault("snapshot.target", d.Snapshot.Target)
	v.SetDefault("snapshot.key", d.Snapshot.Key)
	v.SetDefault("snapshot.format", d.Snapshot.Format)
	v.SetDefault("snapshot.interval", d.Snapshot.Interval)

	v.SetDefault("s3.region", d.S3.Region)
	v.SetDefault("s3.endpoint", d.S3.Endpoint)
	v.SetDefault("s3.path_style", d.S3.PathStyle)
	v.SetDefault("s3.access_key_id", d.S3.AccessKeyID)
	v.SetDefault("s3.secret_access_key", d.S3.SecretAccessKey)

	v.SetDefault("bench.depth", d.Bench.Depth)
	v.SetDefault("bench.fanout", d.Bench.Fanout)
	v.SetDefault("bench.iterations", d.Bench.Iterations)
}

// Loader reads configuration from files, environment and bound flags.
type Loader struct {
	v    *viper.Viper
	dirs []string
}

// NewLoader returns a Loader with defaults and environment overrides set up.
// Search directories default to the working directory and ConfigDir.
func NewLoader() *Loader {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v, dirs: []string{".", ConfigDir()}}
}

// WithSearchDirs replaces the directories searched when Load gets no path.
func (l *Loader) WithSearchDirs(dirs ...string) *Loader {
	l.dirs = dirs
	return l
}

// BindFlag makes a command line flag override key. A nil flag is ignored.
func (l *Loader) BindFlag(key string, f *pflag.Flag) error {
	if f == nil {
		return nil
	}
	return l.v.BindPFlag(key, f)
}

// Load reads path, or searches for cellkit.{yaml,json,toml} when path is
// empty, and returns the validated configuration. A missing file is only an
// error when path was given explicitly.
func (l *Loader) Load(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.New("C100").
				WithDetailf("No configuration at %s", path).
				Wrap(err)
		}
		l.v.SetConfigFile(path)
	} else {
		l.v.SetConfigName(ConfigName)
		for _, dir := range l.dirs {
			l.v.AddConfigPath(dir)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !stderrors.As(err, &notFound) {
			return nil, errors.New("C101").WithDetail(err.Error()).Wrap(err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, errors.New("C101").WithDetail(err.Error()).Wrap(err)
	}
	cfg.path = l.v.ConfigFileUsed()

	if errs := cfg.Validate(); len(errs) > 0 {
		detail := ValidationErrors(errs).Error()
		if cfg.path != "" {
			detail = cfg.path + ": " + detail
		}
		return nil, errors.New("C102").WithDetail(detail).Wrap(ValidationErrors(errs))
	}

	return &cfg, nil
}

// Load is NewLoader().Load(path).
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// ConfigDir returns the user configuration directory for cellkit.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cellkit")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cellkit"
	}
	return filepath.Join(home, ".config", "cellkit")
}
