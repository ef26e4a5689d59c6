package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lemonberrylabs/minic/pkg/types"
)

func program(name string) string {
	return filepath.Join("..", "..", "testdata", "programs", name)
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRun(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"top level", []string{"run", program("add.mc")}, "7\n"},
		{"call", []string{"run", program("add.mc"), "--call", "add", "--arg", "10", "--arg", "-2.5"}, "7\n=> 7.5\n"},
		{"globals", []string{"run", program("scoping.mc")}, "12\n22\n"},
		{"stdlib", []string{"run", "--stdlib", program("geometry.mc")}, "10\n5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := execute(t, "", tt.args...)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunStdin(t *testing.T) {
	got, err := execute(t, "int sq(int x) { return x * x; }", "run", "-", "--call", "sq", "--arg", "9")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != "=> 81\n" {
		t.Errorf("got %q", got)
	}
}

func TestRunDiagnostics(t *testing.T) {
	_, err := execute(t, "", "run", program("broken.mc"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if want := "broken.mc:3:1:"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not contain %q", err, want)
	}

	_, err = execute(t, "", "run", program("geometry.mc"))
	if !types.IsKind(err, types.KindUndefinedFunction) {
		t.Errorf("without --stdlib expected UndefinedFunction, got %v", err)
	}

	_, err = execute(t, "", "run", program("add.mc"), "--call", "add", "--arg", "1")
	if !types.IsKind(err, types.KindArityMismatch) {
		t.Errorf("expected ArityMismatch, got %v", err)
	}
}

func TestTokens(t *testing.T) {
	got, err := execute(t, "int x;", "tokens", "-")
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header plus 4 tokens, got %q", got)
	}
	if fields := strings.Fields(lines[2]); len(fields) != 4 || fields[2] != "ID" || fields[3] != "x" {
		t.Errorf("unexpected token line %q", lines[2])
	}

	_, err = execute(t, "x = 1 $ 2;", "tokens", "-")
	if err == nil || !strings.Contains(err.Error(), "-:1:7:") {
		t.Errorf("expected lex error at 1:7, got %v", err)
	}
}

func TestAST(t *testing.T) {
	got, err := execute(t, "", "ast", program("add.mc"))
	if err != nil {
		t.Fatalf("ast: %v", err)
	}
	if !strings.HasPrefix(got, "Program\n") || !strings.Contains(got, "FuncDecl(ret=int, name=add)") {
		t.Errorf("unexpected tree:\n%s", got)
	}
}

func TestFixtures(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "testdata", "fixtures", "*.yaml"))
	if err != nil || len(paths) == 0 {
		t.Fatalf("no fixtures: %v", err)
	}
	got, err := execute(t, "", append([]string{"test"}, paths...)...)
	if err != nil {
		t.Fatalf("test: %v\n%s", err, got)
	}
	if !strings.Contains(got, "0 failed") {
		t.Errorf("unexpected summary:\n%s", got)
	}

	_, err = execute(t, "", "test", filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, errFixturesFailed) {
		t.Errorf("expected errFixturesFailed, got %v", err)
	}
}

func TestLoadServeConfig(t *testing.T) {
	env := map[string]string{
		"PORT":         "9000",
		"MINIC_STDLIB": "true",
	}
	cmd := newServeCmd()
	if err := cmd.ParseFlags([]string{"--port", "9100", "--timeout", "2s"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := loadServeConfig(cmd, func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("flag should override env, got port %d", cfg.Server.Port)
	}
	if !cfg.Interpreter.Stdlib {
		t.Error("expected stdlib from env")
	}
	if cfg.Interpreter.Timeout != 2*time.Second {
		t.Errorf("got timeout %s", cfg.Interpreter.Timeout)
	}
	if cfg.Server.GRPCPort != 8788 {
		t.Errorf("expected default grpc port, got %d", cfg.Server.GRPCPort)
	}

	bad := newServeCmd()
	if err := bad.ParseFlags([]string{"--max-depth", "-1"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := loadServeConfig(bad, func(string) string { return "" }); err == nil {
		t.Error("expected validation error for negative max depth")
	}
}
