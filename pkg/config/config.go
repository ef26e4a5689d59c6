// Package config loads minic server and interpreter settings. Values are
// layered: defaults, then an optional YAML file, then environment
// variables, then command-line flags (applied by the caller).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lemonberrylabs/minic/pkg/runtime"
	"github.com/lemonberrylabs/minic/pkg/telemetry"
)

// Environment variables read by ApplyEnv.
const (
	EnvConfig       = "MINIC_CONFIG"
	EnvHost         = "HOST"
	EnvPort         = "PORT"
	EnvGRPCPort     = "GRPC_PORT"
	EnvAccessLog    = "MINIC_ACCESS_LOG"
	EnvProgramsDir  = "MINIC_PROGRAMS_DIR"
	EnvMaxCallDepth = "MINIC_MAX_CALL_DEPTH"
	EnvStdlib       = "MINIC_STDLIB"
	EnvTimeout      = "MINIC_TIMEOUT"
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPInsecure = "OTEL_EXPORTER_OTLP_INSECURE"
	EnvServiceName  = "OTEL_SERVICE_NAME"
)

// Config is the complete minic configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Interpreter InterpreterConfig `yaml:"interpreter"`
	Telemetry   telemetry.Config  `yaml:"telemetry"`
}

// ServerConfig configures the HTTP and gRPC listeners.
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	GRPCPort    int    `yaml:"grpc_port"`
	AccessLog   bool   `yaml:"access_log"`
	ProgramsDir string `yaml:"programs_dir"`
}

// InterpreterConfig configures every interpreter the server creates.
type InterpreterConfig struct {
	MaxCallDepth int           `yaml:"max_call_depth"`
	Stdlib       bool          `yaml:"stdlib"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     8787,
			GRPCPort: 8788,
		},
		Interpreter: InterpreterConfig{
			MaxCallDepth: runtime.DefaultMaxCallDepth,
			Timeout:      10 * time.Second,
		},
		Telemetry: telemetry.Config{
			ServiceName: "minic",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	if err := cfg.decode(data); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from environment variables looked up with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvHost); v != "" {
		c.Server.Host = v
	}
	if err := envInt(getenv, EnvPort, &c.Server.Port); err != nil {
		return err
	}
	if err := envInt(getenv, EnvGRPCPort, &c.Server.GRPCPort); err != nil {
		return err
	}
	if err := envBool(getenv, EnvAccessLog, &c.Server.AccessLog); err != nil {
		return err
	}
	if v := getenv(EnvProgramsDir); v != "" {
		c.Server.ProgramsDir = v
	}
	if err := envInt(getenv, EnvMaxCallDepth, &c.Interpreter.MaxCallDepth); err != nil {
		return err
	}
	if err := envBool(getenv, EnvStdlib, &c.Interpreter.Stdlib); err != nil {
		return err
	}
	if v := getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Interpreter.Timeout = d
	}
	if v := getenv(EnvOTLPEndpoint); v != "" {
		c.Telemetry.Endpoint = v
	}
	if err := envBool(getenv, EnvOTLPInsecure, &c.Telemetry.Insecure); err != nil {
		return err
	}
	if v := getenv(EnvServiceName); v != "" {
		c.Telemetry.ServiceName = v
	}
	return nil
}

func envInt(getenv func(string) string, key string, dst *int) error {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func envBool(getenv func(string) string, key string, dst *bool) error {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	*dst = b
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := validPort("server.port", c.Server.Port); err != nil {
		return err
	}
	if err := validPort("server.grpc_port", c.Server.GRPCPort); err != nil {
		return err
	}
	if c.Server.Port == c.Server.GRPCPort && c.Server.Port != 0 {
		return fmt.Errorf("server.port and server.grpc_port must differ (both %d)", c.Server.Port)
	}
	if c.Interpreter.MaxCallDepth <= 0 {
		return fmt.Errorf("interpreter.max_call_depth must be positive, got %d", c.Interpreter.MaxCallDepth)
	}
	if c.Interpreter.Timeout < 0 {
		return fmt.Errorf("interpreter.timeout must not be negative, got %s", c.Interpreter.Timeout)
	}
	return nil
}

func validPort(name string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%s must be between 0 and 65535, got %d", name, port)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GRPCAddr returns the gRPC listen address.
func (c Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}
