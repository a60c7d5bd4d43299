package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/maintlog/maintlog/pkg/telemetry"
)

const (
	// EnvPrefix prefixes every environment override, e.g. MAINTLOG_DATA_DIR.
	EnvPrefix = "MAINTLOG"

	defaultConfigName     = "maintlog"
	defaultDataDirName    = ".maintlog"
	defaultCollectionFile = "reports.json"
	defaultDraftsDir      = "drafts"
	defaultAuditFile      = "audit.db"
	defaultMaxDrafts      = 20
)

// Config is the maintlog configuration.
type Config struct {
	// DataDir holds the collection file, drafts and audit journal.
	DataDir string `mapstructure:"data_dir" validate:"required"`

	// Project is the active project; empty means all projects.
	Project string `mapstructure:"project"`

	// Actor is written to audit entries.
	Actor string `mapstructure:"actor" validate:"required"`

	Storage   StorageConfig   `mapstructure:"storage"`
	Drafts    DraftsConfig    `mapstructure:"drafts"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Export    ExportConfig    `mapstructure:"export"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// StorageConfig configures the shared collection file.
type StorageConfig struct {
	CollectionFile string `mapstructure:"collection_file" validate:"required"`

	// AllowNonAtomic permits an in-place replace when the rename fails.
	// The save is then reported as degraded. When false such a save fails.
	AllowNonAtomic bool `mapstructure:"allow_non_atomic"`
}

// DraftsConfig configures draft recovery.
type DraftsConfig struct {
	Dir       string `mapstructure:"dir" validate:"required"`
	MaxDrafts int    `mapstructure:"max_drafts" validate:"min=1,max=1000"`
}

// AuditConfig configures the SQLite journal.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	File    string `mapstructure:"file" validate:"required_if=Enabled true"`
}

// ExportConfig holds export defaults.
type ExportConfig struct {
	Format      string `mapstructure:"format" validate:"oneof=csv xlsx json"`
	Destination string `mapstructure:"destination"`
}

// TelemetryConfig is the user-facing subset of telemetry settings.
type TelemetryConfig struct {
	Environment     string  `mapstructure:"environment"`
	LogLevel        string  `mapstructure:"log_level" validate:"oneof=trace debug info warn error fatal"`
	LogFormat       string  `mapstructure:"log_format" validate:"oneof=console json"`
	MetricsEnabled  bool    `mapstructure:"metrics_enabled"`
	MetricsAddress  string  `mapstructure:"metrics_address" validate:"omitempty,hostname_port"`
	TracingExporter string  `mapstructure:"tracing_exporter" validate:"oneof=none stdout otlp"`
	TracingEndpoint string  `mapstructure:"tracing_endpoint" validate:"required_if=TracingExporter otlp"`
	SamplingRate    float64 `mapstructure:"sampling_rate" validate:"min=0,max=1"`
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDataDirName
	}
	return filepath.Join(home, defaultDataDirName)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("project", "")
	v.SetDefault("actor", "maintlog")

	v.SetDefault("storage.collection_file", defaultCollectionFile)
	v.SetDefault("storage.allow_non_atomic", true)

	v.SetDefault("drafts.dir", defaultDraftsDir)
	v.SetDefault("drafts.max_drafts", defaultMaxDrafts)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.file", defaultAuditFile)

	v.SetDefault("export.format", "csv")
	v.SetDefault("export.destination", "exports")

	v.SetDefault("telemetry.environment", "production")
	v.SetDefault("telemetry.log_level", "info")
	v.SetDefault("telemetry.log_format", "console")
	v.SetDefault("telemetry.metrics_enabled", true)
	v.SetDefault("telemetry.metrics_address", "")
	v.SetDefault("telemetry.tracing_exporter", "none")
	v.SetDefault("telemetry.tracing_endpoint", "")
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

// Load reads configuration from path, or from maintlog.yaml in the working
// directory or the data directory when path is empty, then applies
// MAINTLOG_* environment overrides. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(defaultDataDir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Defaults always decode.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// CollectionPath returns the shared collection file path.
func (c *Config) CollectionPath() string { return c.resolve(c.Storage.CollectionFile) }

// DraftsDir returns the drafts directory.
func (c *Config) DraftsDir() string { return c.resolve(c.Drafts.Dir) }

// AuditPath returns the SQLite journal path.
func (c *Config) AuditPath() string { return c.resolve(c.Audit.File) }

// ExportDir returns the default export destination.
func (c *Config) ExportDir() string { return c.resolve(c.Export.Destination) }

// TelemetryConfig builds the telemetry configuration.
func (c *Config) TelemetryConfig(version string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	if c.Telemetry.Environment != "" {
		tc.Environment = c.Telemetry.Environment
	}
	tc.Logging.Level = c.Telemetry.LogLevel
	tc.Logging.Format = c.Telemetry.LogFormat
	tc.Metrics.Enabled = c.Telemetry.MetricsEnabled
	tc.Metrics.ListenAddress = c.Telemetry.MetricsAddress
	tc.Tracing.Exporter = c.Telemetry.TracingExporter
	tc.Tracing.Enabled = c.Telemetry.TracingExporter != "none"
	tc.Tracing.Endpoint = c.Telemetry.TracingEndpoint
	tc.Tracing.SamplingRate = c.Telemetry.SamplingRate
	return tc
}
