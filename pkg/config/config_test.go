package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "minic.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:8787" || cfg.GRPCAddr() != "0.0.0.0:8788" {
		t.Errorf("unexpected addresses %s, %s", cfg.Addr(), cfg.GRPCAddr())
	}
	if cfg.Interpreter.MaxCallDepth != 1000 {
		t.Errorf("got max depth %d, want 1000", cfg.Interpreter.MaxCallDepth)
	}
	if cfg.Interpreter.Stdlib {
		t.Error("stdlib should be off by default")
	}
	if cfg.Telemetry.Enabled() {
		t.Error("telemetry should be off by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9000
  access_log: true
  programs_dir: ./programs
interpreter:
  max_call_depth: 200
  stdlib: true
  timeout: 2s
telemetry:
  endpoint: localhost:4317
  insecure: true
  service_name: minic-dev
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9000" {
		t.Errorf("got addr %s", cfg.Addr())
	}
	if cfg.Server.GRPCPort != 8788 {
		t.Errorf("unset grpc_port should keep default, got %d", cfg.Server.GRPCPort)
	}
	if !cfg.Server.AccessLog || cfg.Server.ProgramsDir != "./programs" {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Interpreter.MaxCallDepth != 200 || !cfg.Interpreter.Stdlib || cfg.Interpreter.Timeout != 2*time.Second {
		t.Errorf("unexpected interpreter config %+v", cfg.Interpreter)
	}
	if !cfg.Telemetry.Enabled() || !cfg.Telemetry.Insecure || cfg.Telemetry.ServiceName != "minic-dev" {
		t.Errorf("unexpected telemetry config %+v", cfg.Telemetry)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8787 {
		t.Errorf("empty file should keep defaults, got port %d", cfg.Server.Port)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  prot: 1\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvHost:         "localhost",
		EnvPort:         "1234",
		EnvGRPCPort:     "1235",
		EnvAccessLog:    "true",
		EnvMaxCallDepth: "42",
		EnvStdlib:       "1",
		EnvTimeout:      "500ms",
		EnvOTLPEndpoint: "collector:4317",
		EnvServiceName:  "minic-ci",
	}
	cfg := Default()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Addr() != "localhost:1234" || cfg.GRPCAddr() != "localhost:1235" {
		t.Errorf("unexpected addrs %s %s", cfg.Addr(), cfg.GRPCAddr())
	}
	if !cfg.Server.AccessLog || cfg.Interpreter.MaxCallDepth != 42 || !cfg.Interpreter.Stdlib {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Interpreter.Timeout != 500*time.Millisecond {
		t.Errorf("got timeout %s", cfg.Interpreter.Timeout)
	}
	if cfg.Telemetry.Endpoint != "collector:4317" || cfg.Telemetry.ServiceName != "minic-ci" {
		t.Errorf("unexpected telemetry %+v", cfg.Telemetry)
	}
}

func TestApplyEnvErrors(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{EnvPort, "eighty"},
		{EnvStdlib, "maybe"},
		{EnvTimeout, "soon"},
		{EnvMaxCallDepth, "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := Default()
			err := cfg.ApplyEnv(func(k string) string {
				if k == tt.key {
					return tt.value
				}
				return ""
			})
			if err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("expected error naming %s, got %v", tt.key, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"negative grpc port", func(c *Config) { c.Server.GRPCPort = -1 }, "server.grpc_port"},
		{"same ports", func(c *Config) { c.Server.GRPCPort = c.Server.Port }, "must differ"},
		{"zero depth", func(c *Config) { c.Interpreter.MaxCallDepth = 0 }, "max_call_depth"},
		{"negative timeout", func(c *Config) { c.Interpreter.Timeout = -time.Second }, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
