// Package main is the entry point for the minic interpreter and server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/minic/pkg/api"
	grpcapi "github.com/lemonberrylabs/minic/pkg/api/grpc"
	"github.com/lemonberrylabs/minic/pkg/config"
	"github.com/lemonberrylabs/minic/pkg/service"
	"github.com/lemonberrylabs/minic/pkg/store"
	"github.com/lemonberrylabs/minic/pkg/telemetry"
	"github.com/lemonberrylabs/minic/web"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "minic",
		Short:         "Interpreter for a minimal typed language",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Version = version + " (commit=" + commit + ", built=" + date + ")"
	root.SetVersionTemplate("minic version {{.Version}}\n")

	root.AddCommand(
		newRunCmd(),
		newTokensCmd(),
		newASTCmd(),
		newTestCmd(),
		newServeCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, gRPC API and web UI",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}
	cmd.Flags().String("config", "", "YAML config file (env MINIC_CONFIG)")
	cmd.Flags().Int("port", 0, "HTTP server port (default 8787, env PORT)")
	cmd.Flags().Int("grpc-port", 0, "gRPC server port (default 8788, env GRPC_PORT)")
	cmd.Flags().String("host", "", "Bind address (default 0.0.0.0, env HOST)")
	cmd.Flags().String("programs-dir", "", "Directory of .mc programs to load at startup (env MINIC_PROGRAMS_DIR)")
	cmd.Flags().Bool("access-log", false, "Log every HTTP request (env MINIC_ACCESS_LOG)")
	cmd.Flags().Bool("stdlib", false, "Expose the math builtins to programs (env MINIC_STDLIB)")
	cmd.Flags().Int("max-depth", 0, "Maximum call depth (default 1000, env MINIC_MAX_CALL_DEPTH)")
	cmd.Flags().Duration("timeout", 0, "Per-run time limit (default 10s, env MINIC_TIMEOUT)")
	return cmd
}

// loadServeConfig layers defaults, the config file, the environment and
// explicitly set flags.
func loadServeConfig(cmd *cobra.Command, getenv func(string) string) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = getenv(config.EnvConfig)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("grpc-port") {
		cfg.Server.GRPCPort, _ = flags.GetInt("grpc-port")
	}
	if flags.Changed("programs-dir") {
		cfg.Server.ProgramsDir, _ = flags.GetString("programs-dir")
	}
	if flags.Changed("access-log") {
		cfg.Server.AccessLog, _ = flags.GetBool("access-log")
	}
	if flags.Changed("stdlib") {
		cfg.Interpreter.Stdlib, _ = flags.GetBool("stdlib")
	}
	if flags.Changed("max-depth") {
		cfg.Interpreter.MaxCallDepth, _ = flags.GetInt("max-depth")
	}
	if flags.Changed("timeout") {
		cfg.Interpreter.Timeout, _ = flags.GetDuration("timeout")
	}
	cfg.Telemetry.Version = version

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := loadServeConfig(cmd, os.Getenv)
	if err != nil {
		return err
	}

	tracer, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(ctx); err != nil {
			log.Printf("Error flushing traces: %v", err)
		}
	}()
	if cfg.Telemetry.Enabled() {
		log.Printf("Exporting traces to %s", cfg.Telemetry.Endpoint)
	}

	s := store.New()
	svc := service.New(s, cfg.Interpreter, service.WithTracer(tracer))

	// Load programs from directory if specified
	if dir := cfg.Server.ProgramsDir; dir != "" {
		if _, err := svc.LoadDir(cmd.Context(), dir); err != nil {
			log.Printf("Warning: failed to load programs directory: %v", err)
		}
	}

	server := api.New(svc, cfg.Server)

	// Register the web UI (non-fatal if template parsing fails)
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Warning: web UI disabled due to template error: %v", r)
			}
		}()
		web.New(s).Register(server.App())
	}()

	// Start gRPC server
	grpcServer := grpcapi.New(svc)
	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr())
		if err := grpcServer.Serve(cfg.GRPCAddr()); err != nil {
			log.Fatalf("gRPC server error: %v", err)
		}
	}()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down minic...")
		grpcServer.GracefulStop()
		if err := server.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	log.Printf("minic listening on %s (stdlib=%t, max depth=%d, timeout=%s)",
		cfg.Addr(), cfg.Interpreter.Stdlib, cfg.Interpreter.MaxCallDepth, cfg.Interpreter.Timeout)
	return server.Listen(cfg.Addr())
}
