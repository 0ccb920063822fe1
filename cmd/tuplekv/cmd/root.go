package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andreyvit/tuplekv"
)

var (
	flagDB      string
	flagBackend string
	flagConfig  string
	flagVerbose bool

	cfg = DefaultConfig()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tuplekv",
	Short: "Inspect and edit tuplekv stores",
	Long: `tuplekv works with stores written by the tuplekv library: ordered
key-value files where keys are tuple-encoded.

Keys on the command line are JSON arrays that get tuple-packed, so
  tuplekv get '["users", 42]'
reads the key ("users", 42). Strings, integers, floats, booleans, null and
nested arrays are supported.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return resolveConfig()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tuplekv:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "path to the store file (overrides the config file)")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "storage backend: bolt, pebble or memory")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
}

// resolveConfig merges the config file and the persistent flags; flags win.
func resolveConfig() error {
	if flagConfig != "" {
		c, err := LoadConfig(flagConfig)
		if err != nil {
			return err
		}
		cfg = c
	}
	if flagDB != "" {
		cfg.DB = flagDB
	}
	if flagBackend != "" {
		cfg.Backend = flagBackend
	}
	if flagVerbose {
		cfg.Logging.Level = "debug"
	}

	var level slog.Level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", cfg.Logging.Level)
	}
	slog.SetLogLoggerLevel(level)
	return nil
}

func openDB() (*tuplekv.DB, error) {
	db, err := tuplekv.Open(cfg.DB, tuplekv.Options{
		Backend: tuplekv.Backend(cfg.Backend),
		Verbose: flagVerbose,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", cfg.DB, err)
	}
	return db, nil
}
