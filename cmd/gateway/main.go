// Package main is the entry point for the tenant gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/vyrodovalexey/tenantgw/internal/config"
	"github.com/vyrodovalexey/tenantgw/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

const envConfigPath = "GATEWAY_CONFIG_PATH"

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags, err := parseFlags(os.Args[1:], os.LookupEnv)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if flags.showVersion {
		printVersion(os.Stdout)
		return
	}

	if err := run(context.Background(), flags, os.LookupEnv); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags. The config path falls back to
// GATEWAY_CONFIG_PATH; an empty path runs on environment and defaults.
// Empty log flags leave the configured values alone.
func parseFlags(args []string, lookup config.LookupFunc) (cliFlags, error) {
	var flags cliFlags

	fs := pflag.NewFlagSet("tenantgw", pflag.ContinueOnError)
	fs.StringVarP(&flags.configPath, "config", "c", getEnvOrDefault(lookup, envConfigPath, ""),
		"Path to configuration file")
	fs.StringVar(&flags.logLevel, "log-level", "",
		"Log level (debug, info, warn, error)")
	fs.StringVar(&flags.logFormat, "log-format", "",
		"Log format (json, console)")
	fs.BoolVar(&flags.showVersion, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	if extra := fs.Args(); len(extra) > 0 {
		return cliFlags{}, fmt.Errorf("unexpected argument: %s", extra[0])
	}
	return flags, nil
}

// printVersion prints version information.
func printVersion(w io.Writer) {
	_, _ = fmt.Fprintf(w, "tenantgw version %s\n", version)
	_, _ = fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	_, _ = fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

// run loads the configuration, starts the gateway and blocks until a
// shutdown signal arrives.
func run(ctx context.Context, flags cliFlags, lookup config.LookupFunc) error {
	cfg, err := loadConfig(flags, lookup)
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.Observability.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting tenantgw",
		observability.String("version", version),
		observability.String("config", flags.configPath),
	)
	logConfigSummary(cfg, logger)

	app, err := initApplication(ctx, cfg, lookup, logger)
	if err != nil {
		logger.Error("failed to initialize gateway", observability.Error(err))
		return err
	}

	return runGateway(ctx, app, flags, lookup)
}

// initLogger builds the process logger and installs it globally.
func initLogger(cfg config.LoggingConfig) (observability.Logger, error) {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	observability.SetGlobalLogger(logger)
	return logger, nil
}
