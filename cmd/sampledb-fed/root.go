package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sampledb/sampledb/pkg/config"
)

// settings merges persistent flags with SAMPLEDB_* environment variables.
var settings = viper.New()

var rootCmd = &cobra.Command{
	Use:   "sampledb-fed",
	Short: "Federation node for SampleDB instances",
	Long: `sampledb-fed imports entities shared by peer components, exports local
shares to them and keeps a federation log of both.

Configuration is read from a YAML file (--config), then SAMPLEDB_* environment
variables, then command line flags. An optional .env file is loaded first.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile := settings.GetString("env-file")
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "sampledb.yaml", "Path to the YAML configuration file")
	pf.String("env-file", ".env", "Optional dotenv file loaded before configuration")
	pf.StringP("output", "o", "table", "Output format: table, json, yaml")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("federation-uuid", "", "UUID of this component (overrides config)")
	addDatabaseFlags(pf)

	// glog reads its settings from the standard flag set.
	pf.AddGoFlagSet(flag.CommandLine)

	settings.SetEnvPrefix("SAMPLEDB")
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	if err := settings.BindPFlags(pf); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(componentsCmd)
	rootCmd.AddCommand(healthcheckCmd)
}

func addDatabaseFlags(flags *pflag.FlagSet) {
	flags.String("db-type", "", "Database type: sqlite, postgres or mysql (overrides config)")
	flags.String("db-dsn", "", "Database connection string (overrides config)")
}

// loadConfig resolves the configuration: file, then environment, then flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(settings.GetString("config"))
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if v := settings.GetString("federation-uuid"); v != "" {
		cfg.FederationUUID = v
	}
	if v := settings.GetString("db-type"); v != "" {
		cfg.Database.Type = v
	}
	if v := settings.GetString("db-dsn"); v != "" {
		cfg.Database.DSN = v
	}
	if v := settings.GetString("listen"); v != "" {
		cfg.Listen = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the structured logger. Logs go to stderr so that command
// output on stdout stays machine readable.
func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(settings.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})), nil
}

func outputFormat() string {
	return settings.GetString("output")
}
