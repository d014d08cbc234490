package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/opwatch/opwatch/pkg/telemetry"
	"github.com/opwatch/opwatch/pkg/tracker"
)

// Duration wraps time.Duration so YAML values can be written as "500ms" or
// "1m" as well as nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root opwatch configuration, usually loaded from a YAML file.
type Config struct {
	// ControlPlane configures the remote control plane endpoint.
	ControlPlane ControlPlaneConfig `yaml:"control_plane" validate:"required"`

	// Tracker configures the mutation tracking engine.
	Tracker TrackerConfig `yaml:"tracker"`

	// Telemetry configures logging, metrics, and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// History configures the terminal-outcome audit store.
	History HistoryConfig `yaml:"history"`

	// Policy configures the submission policy engine.
	Policy PolicyConfig `yaml:"policy"`
}

// ControlPlaneConfig describes how to reach the control plane.
type ControlPlaneConfig struct {
	// BaseURL is the control plane API base URL.
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// ConnectionID scopes mutations to one configured endpoint/credential
	// pair. Distinct connections never share tracking state.
	ConnectionID string `yaml:"connection_id" validate:"required"`

	// AuthToken is an optional bearer token for the control plane.
	AuthToken string `yaml:"auth_token"`

	// RequestTimeout bounds each control plane HTTP request.
	RequestTimeout Duration `yaml:"request_timeout"`
}

// TrackerConfig tunes the polling engine.
type TrackerConfig struct {
	// PollInterval is the fixed delay between polling rounds.
	PollInterval Duration `yaml:"poll_interval"`

	// StatusTimeout bounds a single status query.
	StatusTimeout Duration `yaml:"status_timeout"`
}

// TelemetryConfig is the file-level telemetry configuration. It is mapped
// onto the telemetry package's richer Config at startup.
type TelemetryConfig struct {
	// LogLevel sets the minimum log level.
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal"`

	// LogFormat selects console or json output.
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=console json"`

	// MetricsEnabled exposes Prometheus metrics over HTTP.
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// MetricsListen is the metrics endpoint listen address.
	MetricsListen string `yaml:"metrics_listen"`

	// TracingEnabled turns on OpenTelemetry tracing.
	TracingEnabled bool `yaml:"tracing_enabled"`

	// TracingExporter selects the trace exporter.
	TracingExporter string `yaml:"tracing_exporter" validate:"omitempty,oneof=otlp stdout none"`

	// TracingEndpoint is the OTLP collector endpoint.
	TracingEndpoint string `yaml:"tracing_endpoint"`
}

// HistoryConfig configures the sqlite audit store.
type HistoryConfig struct {
	// Enabled turns outcome recording on.
	Enabled bool `yaml:"enabled"`

	// Path is the sqlite database file path.
	Path string `yaml:"path"`
}

// PolicyConfig configures the submission policy engine.
type PolicyConfig struct {
	// Enabled turns policy evaluation on. When disabled every submission
	// is authorized.
	Enabled bool `yaml:"enabled"`

	// Dir is a directory of additional .rego policy files.
	Dir string `yaml:"dir"`

	// ProtectedResourceTypes lists resource types the builtin policy
	// refuses to delete.
	ProtectedResourceTypes []string `yaml:"protected_resource_types"`

	// AllowedConnections restricts submissions to the listed connection
	// identities. Empty allows every connection.
	AllowedConnections []string `yaml:"allowed_connections"`
}

// Default returns a configuration with all defaults applied. The control
// plane section has no sensible default and must come from the file.
func Default() *Config {
	return &Config{
		ControlPlane: ControlPlaneConfig{
			RequestTimeout: Duration(30 * time.Second),
		},
		Tracker: TrackerConfig{
			PollInterval:  Duration(tracker.DefaultPollInterval),
			StatusTimeout: Duration(tracker.DefaultStatusTimeout),
		},
		Telemetry: TelemetryConfig{
			LogLevel:        "info",
			LogFormat:       "console",
			MetricsEnabled:  false,
			MetricsListen:   ":9090",
			TracingEnabled:  false,
			TracingExporter: "stdout",
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    "opwatch-history.db",
		},
		Policy: PolicyConfig{
			Enabled: false,
		},
	}
}

// Load reads, parses, and validates a YAML configuration file. Fields absent
// from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates raw YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields that YAML may have cleared.
func (c *Config) applyDefaults() {
	if c.ControlPlane.RequestTimeout <= 0 {
		c.ControlPlane.RequestTimeout = Duration(30 * time.Second)
	}
	if c.Tracker.PollInterval <= 0 {
		c.Tracker.PollInterval = Duration(tracker.DefaultPollInterval)
	}
	if c.Tracker.StatusTimeout <= 0 {
		c.Tracker.StatusTimeout = Duration(tracker.DefaultStatusTimeout)
	}
	if c.Telemetry.LogLevel == "" {
		c.Telemetry.LogLevel = "info"
	}
	if c.Telemetry.LogFormat == "" {
		c.Telemetry.LogFormat = "console"
	}
	if c.Telemetry.MetricsListen == "" {
		c.Telemetry.MetricsListen = ":9090"
	}
	if c.Telemetry.TracingExporter == "" {
		c.Telemetry.TracingExporter = "stdout"
	}
	if c.History.Path == "" {
		c.History.Path = "opwatch-history.db"
	}
}

// Validate checks the configuration for structural and semantic errors.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Tracker.PollInterval.Std() < 10*time.Millisecond {
		return fmt.Errorf("tracker poll_interval %s is below the 10ms floor", c.Tracker.PollInterval.Std())
	}
	if c.Tracker.StatusTimeout <= 0 {
		return fmt.Errorf("tracker status_timeout must be positive")
	}
	if c.Telemetry.TracingEnabled && c.Telemetry.TracingExporter == "otlp" && c.Telemetry.TracingEndpoint == "" {
		return fmt.Errorf("tracing_endpoint is required for the otlp exporter")
	}
	if c.Policy.Enabled && c.Policy.Dir != "" {
		info, err := os.Stat(c.Policy.Dir)
		if err != nil {
			return fmt.Errorf("policy dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("policy dir %s is not a directory", c.Policy.Dir)
		}
	}
	return nil
}

// TelemetrySettings maps the file-level telemetry section onto the telemetry
// package's configuration.
func (c *Config) TelemetrySettings(version string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	tc.Logging.Level = c.Telemetry.LogLevel
	tc.Logging.Format = c.Telemetry.LogFormat
	tc.Metrics.Enabled = c.Telemetry.MetricsEnabled
	tc.Metrics.ListenAddress = c.Telemetry.MetricsListen
	tc.Tracing.Enabled = c.Telemetry.TracingEnabled
	tc.Tracing.Exporter = c.Telemetry.TracingExporter
	tc.Tracing.Endpoint = c.Telemetry.TracingEndpoint
	return tc
}
