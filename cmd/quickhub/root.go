package main

import (
	"fmt"
	"os"

	"github.com/caffeineduck/quickhub/app"
	"github.com/caffeineduck/quickhub/internal/config"
	"github.com/caffeineduck/quickhub/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "quickhub [file]",
	Short: "Tabbed web search and a sandboxed JavaScript console",
	Long: `quickhub - Keep search tabs and run JavaScript in an isolated sandbox.

Run scripts from files, inline strings, or stdin. Scripts run in a fresh
JavaScript context with no access to the filesystem, network, or host
environment; console output and the returned value are printed.

Configuration is read from QUICKHUB_* environment variables; flags override
them.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRun, // Default to run command behavior
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("isolation", "", "Where scripts run: frame (in-process) or process (child process)")
	rootCmd.PersistentFlags().String("storage-path", "", "Tab store file (default: <config dir>/quickhub/store.json)")
	rootCmd.PersistentFlags().Bool("memory", false, "Keep tabs in memory only")
	rootCmd.PersistentFlags().String("search-url", "", "Search endpoint (default https://www.google.com/search)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-dev", false, "Human-readable development logs")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	addRunFlags(rootCmd)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// loadConfig reads the environment and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}

	flags := cmd.Flags()
	if flags.Changed("isolation") {
		cfg.Isolation, _ = flags.GetString("isolation")
	}
	if flags.Changed("storage-path") {
		cfg.StoragePath, _ = flags.GetString("storage-path")
		cfg.Storage = config.StorageFile
	}
	if mem, _ := flags.GetBool("memory"); mem {
		cfg.Storage = config.StorageMemory
	}
	if flags.Changed("search-url") {
		cfg.SearchURL, _ = flags.GetString("search-url")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-dev") {
		cfg.LogDev, _ = flags.GetBool("log-dev")
	}
	if flags.Changed("no-color") {
		cfg.NoColor, _ = flags.GetBool("no-color")
	}

	if err := cfg.Validate(); err != nil {
		fail(err)
	}
	return cfg
}

func newLogger(cfg *config.Config) *zap.Logger {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	if cfg.LogDev {
		logCfg.Development = true
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		fail(fmt.Errorf("logger: %w", err))
	}
	return logger
}

// openApp builds the application for a command. The caller closes it.
func openApp(cmd *cobra.Command, opts ...app.Option) (*app.App, *config.Config, *zap.Logger) {
	cfg := loadConfig(cmd)
	logger := newLogger(cfg)

	a, err := app.New(cfg, append([]app.Option{app.WithLogger(logger)}, opts...)...)
	if err != nil {
		fail(err)
	}
	return a, cfg, logger
}
