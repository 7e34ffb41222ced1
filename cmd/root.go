// Package cmd implements the nftctl command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"grimm.is/nftctl/internal/brand"
	"grimm.is/nftctl/internal/config"
	"grimm.is/nftctl/internal/i18n"
	"grimm.is/nftctl/internal/logging"
	"grimm.is/nftctl/internal/metrics"
	"grimm.is/nftctl/internal/nft"
	"grimm.is/nftctl/internal/ruleset"
)

// Printer formats user-facing output for the current locale.
var Printer = i18n.NewCLIPrinter()

// Env is what every command runs against.
type Env struct {
	Config *config.Config
	Logger *logging.Logger
	Out    io.Writer

	// Launcher starts the nft process. Nil runs the binary named in
	// Config.Session.
	Launcher nft.Launcher
	Metrics  *metrics.Registry
}

// Open starts a session and returns the ruleset bound to it.
func (e *Env) Open(ctx context.Context) (*ruleset.Ruleset, error) {
	opts := ruleset.Options{Logger: e.Logger, Metrics: e.Metrics}
	if e.Launcher != nil {
		return ruleset.OpenWithLauncher(ctx, e.Launcher, e.Config, opts)
	}
	return ruleset.Open(ctx, e.Config, opts)
}

func (e *Env) printf(format string, args ...any) {
	Printer.Fprintf(e.Out, format, args...)
}

var (
	configFile string
	logLevel   string
	logJSON    bool
	namespace  string

	// launcherOverride lets tests run the commands against a fake nft.
	launcherOverride nft.Launcher
)

var rootCmd = &cobra.Command{
	Use:           brand.BinaryName,
	Short:         brand.Description,
	Long:          `nftctl drives a long-lived "nft --interactive" process and manages tables, chains, sets, counters and rules through it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		Printer.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errDiffers) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", brand.DefaultConfigPath(), "Configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log as JSON")
	rootCmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "", "Run nft inside this network namespace")
}

// newEnv loads the config named by --config and applies the global flags.
// A missing default config file is not an error.
func newEnv(cmd *cobra.Command) (*Env, error) {
	cfg, err := loadConfig(configFile, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	if namespace != "" {
		if cfg.Session == nil {
			cfg.Session = &config.SessionConfig{}
		}
		cfg.Session.Namespace = namespace
	}

	logger, err := setupLogging(cfg.Log, logLevel, logJSON)
	if err != nil {
		return nil, err
	}
	return &Env{
		Config:   cfg,
		Logger:   logger,
		Out:      cmd.OutOrStdout(),
		Launcher: launcherOverride,
		Metrics:  metrics.Get(),
	}, nil
}

func loadConfig(path string, explicit bool) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !explicit {
		return config.Default(), nil
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration invalid: %w", err)
	}
	return cfg, nil
}

func setupLogging(lc *config.LogConfig, level string, json bool) (*logging.Logger, error) {
	lcfg := logging.DefaultConfig()
	if lc != nil {
		if level == "" {
			level = lc.Level
		}
		lcfg.JSON = lc.JSON
	}
	if json {
		lcfg.JSON = true
	}
	if level != "" {
		lvl, err := logging.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		lcfg.Level = lvl
	}

	logger := logging.New(lcfg)
	logging.SetDefault(logger)
	return logger, nil
}
