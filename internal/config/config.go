// Package config loads testbed-monitor settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ConfigName = "testbed-monitor"
	EnvPrefix  = "TESTBED"
)

// Config is the full server configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	GNB        GNBConfig        `mapstructure:"gnb" yaml:"gnb"`
	Capture    CaptureConfig    `mapstructure:"capture" yaml:"capture"`
	Packets    PacketsConfig    `mapstructure:"packets" yaml:"packets"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Prometheus PrometheusConfig `mapstructure:"prometheus" yaml:"prometheus"`
	Core       CoreConfig       `mapstructure:"core" yaml:"core"`
}

type ServerConfig struct {
	HTTPAddress string `mapstructure:"http_address" yaml:"http_address"`
	// GRPCAddress enables the gRPC health endpoint when set.
	GRPCAddress    string   `mapstructure:"grpc_address" yaml:"grpc_address"`
	OriginPatterns []string `mapstructure:"origin_patterns" yaml:"origin_patterns"`
	// TLS material for the gRPC endpoint is read from these environment
	// variables as PEM; all three must be set to enable mTLS.
	TLSCertEnv string `mapstructure:"tls_cert_env" yaml:"tls_cert_env"`
	TLSKeyEnv  string `mapstructure:"tls_key_env" yaml:"tls_key_env"`
	TLSCAEnv   string `mapstructure:"tls_ca_env" yaml:"tls_ca_env"`
	// AllowedPeers lists SPIFFE trust domains accepted over mTLS; empty
	// accepts any verified client.
	AllowedPeers []string `mapstructure:"allowed_peers" yaml:"allowed_peers"`
	// HealthInterval is how often gRPC health statuses are refreshed.
	HealthInterval time.Duration `mapstructure:"health_interval" yaml:"health_interval"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

type GNBConfig struct {
	Executable    string        `mapstructure:"executable" yaml:"executable"`
	ConfigFile    string        `mapstructure:"config_file" yaml:"config_file"`
	Args          []string      `mapstructure:"args" yaml:"args"`
	FollowTimeout time.Duration `mapstructure:"follow_timeout" yaml:"follow_timeout"`
}

type CaptureConfig struct {
	Directory        string        `mapstructure:"directory" yaml:"directory"`
	Tool             string        `mapstructure:"tool" yaml:"tool"`
	DefaultInterface string        `mapstructure:"default_interface" yaml:"default_interface"`
	StopTimeout      time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
}

type PacketsConfig struct {
	Tool                  string        `mapstructure:"tool" yaml:"tool"`
	PollInterval          time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ContinueOnRecordError bool          `mapstructure:"continue_on_record_error" yaml:"continue_on_record_error"`
}

type MetricsConfig struct {
	InfluxURL    string        `mapstructure:"influx_url" yaml:"influx_url"`
	InfluxToken  string        `mapstructure:"influx_token" yaml:"influx_token"`
	InfluxOrg    string        `mapstructure:"influx_org" yaml:"influx_org"`
	InfluxBucket string        `mapstructure:"influx_bucket" yaml:"influx_bucket"`
	Measurement  string        `mapstructure:"measurement" yaml:"measurement"`
	SubjectTag   string        `mapstructure:"subject_tag" yaml:"subject_tag"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Lookback     time.Duration `mapstructure:"lookback" yaml:"lookback"`
}

type PrometheusConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Metric  string        `mapstructure:"metric" yaml:"metric"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type CoreConfig struct {
	ComposeFile   string          `mapstructure:"compose_file" yaml:"compose_file"`
	ComposeBinary string          `mapstructure:"compose_binary" yaml:"compose_binary"`
	Services      []ServiceConfig `mapstructure:"services" yaml:"services"`
}

// ServiceConfig maps a core service name to its container.
type ServiceConfig struct {
	Name      string `mapstructure:"name" yaml:"name"`
	Container string `mapstructure:"container" yaml:"container"`
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddress:    ":8001",
			OriginPatterns: []string{"*"},
			TLSCertEnv:     "TESTBED_TLS_CERT",
			TLSKeyEnv:      "TESTBED_TLS_KEY",
			TLSCAEnv:       "TESTBED_TLS_CA",
			HealthInterval: 2 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		GNB: GNBConfig{
			Executable:    "/opt/oai/cmake_targets/ran_build/build/nr-softmodem",
			ConfigFile:    "/opt/oai/targets/PROJECTS/GENERIC-NR-5GC/CONF/gnb.conf",
			FollowTimeout: time.Second,
		},
		Capture: CaptureConfig{
			Directory:        "tshark/captures",
			Tool:             "tshark",
			DefaultInterface: "eth0",
			StopTimeout:      10 * time.Second,
		},
		Packets: PacketsConfig{
			Tool:         "tshark",
			PollInterval: 100 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			InfluxURL:    "http://influxdb:8086",
			InfluxOrg:    "testbed",
			InfluxBucket: "testbed",
			Measurement:  "system_usage",
			SubjectTag:   "ue_id",
			PollInterval: 2 * time.Second,
			Lookback:     10 * time.Second,
		},
		Prometheus: PrometheusConfig{
			URL:     "http://prometheus:9090",
			Metric:  "oai_container_status",
			Timeout: 5 * time.Second,
		},
		Core: CoreConfig{
			ComposeFile:   "/home/user/oai-cn5g/docker-compose.yaml",
			ComposeBinary: "docker",
			Services:      DefaultServices(),
		},
	}
}

// DefaultServices lists the OAI 5G core network functions.
func DefaultServices() []ServiceConfig {
	names := []string{"amf", "smf", "upf", "ausf", "udm", "udr", "nrf", "nssf", "ims"}
	services := make([]ServiceConfig, 0, len(names))
	for _, n := range names {
		services = append(services, ServiceConfig{Name: n, Container: "oai-" + n})
	}
	return services
}

// ServiceMap returns service name to container name.
func (c CoreConfig) ServiceMap() map[string]string {
	m := make(map[string]string, len(c.Services))
	for _, s := range c.Services {
		m[s.Name] = s.Container
	}
	return m
}

// Load reads path, or searches the default locations when path is empty, and
// applies environment overrides. A missing file is only an error when path
// was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/testbed-monitor")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("prometheus.url", EnvPrefix+"_PROMETHEUS_URL", "PROMETHEUS_URL")
	_ = v.BindEnv("core.compose_file", EnvPrefix+"_CORE_COMPOSE_FILE", "FIVEG_CORE_DOCKER_COMPOSE_PATH")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Core.Services) == 0 {
		cfg.Core.Services = DefaultServices()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.http_address", d.Server.HTTPAddress)
	v.SetDefault("server.grpc_address", d.Server.GRPCAddress)
	v.SetDefault("server.origin_patterns", d.Server.OriginPatterns)
	v.SetDefault("server.tls_cert_env", d.Server.TLSCertEnv)
	v.SetDefault("server.tls_key_env", d.Server.TLSKeyEnv)
	v.SetDefault("server.tls_ca_env", d.Server.TLSCAEnv)
	v.SetDefault("server.allowed_peers", d.Server.AllowedPeers)
	v.SetDefault("server.health_interval", d.Server.HealthInterval)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)

	v.SetDefault("gnb.executable", d.GNB.Executable)
	v.SetDefault("gnb.config_file", d.GNB.ConfigFile)
	v.SetDefault("gnb.args", d.GNB.Args)
	v.SetDefault("gnb.follow_timeout", d.GNB.FollowTimeout)

	v.SetDefault("capture.directory", d.Capture.Directory)
	v.SetDefault("capture.tool", d.Capture.Tool)
	v.SetDefault("capture.default_interface", d.Capture.DefaultInterface)
	v.SetDefault("capture.stop_timeout", d.Capture.StopTimeout)

	v.SetDefault("packets.tool", d.Packets.Tool)
	v.SetDefault("packets.poll_interval", d.Packets.PollInterval)
	v.SetDefault("packets.continue_on_record_error", d.Packets.ContinueOnRecordError)

	v.SetDefault("metrics.influx_url", d.Metrics.InfluxURL)
	v.SetDefault("metrics.influx_token", d.Metrics.InfluxToken)
	v.SetDefault("metrics.influx_org", d.Metrics.InfluxOrg)
	v.SetDefault("metrics.influx_bucket", d.Metrics.InfluxBucket)
	v.SetDefault("metrics.measurement", d.Metrics.Measurement)
	v.SetDefault("metrics.subject_tag", d.Metrics.SubjectTag)
	v.SetDefault("metrics.poll_interval", d.Metrics.PollInterval)
	v.SetDefault("metrics.lookback", d.Metrics.Lookback)

	v.SetDefault("prometheus.url", d.Prometheus.URL)
	v.SetDefault("prometheus.metric", d.Prometheus.Metric)
	v.SetDefault("prometheus.timeout", d.Prometheus.Timeout)

	v.SetDefault("core.compose_file", d.Core.ComposeFile)
	v.SetDefault("core.compose_binary", d.Core.ComposeBinary)
}

// Validate checks required values and durations.
func (c Config) Validate() error {
	var errs []error
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	positive := func(d time.Duration, name string) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	require(c.Server.HTTPAddress, "server.http_address")
	require(c.GNB.Executable, "gnb.executable")
	require(c.GNB.ConfigFile, "gnb.config_file")
	require(c.Capture.Directory, "capture.directory")
	require(c.Capture.Tool, "capture.tool")
	require(c.Packets.Tool, "packets.tool")
	require(c.Metrics.InfluxURL, "metrics.influx_url")
	require(c.Metrics.InfluxBucket, "metrics.influx_bucket")
	require(c.Prometheus.URL, "prometheus.url")
	require(c.Core.ComposeFile, "core.compose_file")

	positive(c.Server.HealthInterval, "server.health_interval")
	positive(c.GNB.FollowTimeout, "gnb.follow_timeout")
	positive(c.Capture.StopTimeout, "capture.stop_timeout")
	positive(c.Packets.PollInterval, "packets.poll_interval")
	positive(c.Metrics.PollInterval, "metrics.poll_interval")
	positive(c.Metrics.Lookback, "metrics.lookback")
	positive(c.Prometheus.Timeout, "prometheus.timeout")

	seen := make(map[string]bool, len(c.Core.Services))
	for _, s := range c.Core.Services {
		if s.Name == "" || s.Container == "" {
			errs = append(errs, fmt.Errorf("core.services entries need name and container"))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("core.services: duplicate service %q", s.Name))
		}
		seen[s.Name] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
