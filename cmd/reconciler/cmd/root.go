package cmd

import (
	"context"
	"fmt"
	"os"

	"rent-reconciliation-service/cmd/reconciler/config"
	"rent-reconciliation-service/internal/store"
	"rent-reconciliation-service/pkg/errors"
	"rent-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"

	// settings holds the merged config file, environment and flag values.
	settings = config.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Monthly rent statement reconciliation",
	Long: `Reconciler checks property managers' rent statements against the bank
export for a month. It compares rent, HOA dues and mortgage payments with the
property master data, lists unattributed expenses and stores the results.

Examples:
  reconciler params load --file properties.csv
  reconciler reconcile --month 2025-01 --statement sure.pdf --bank-file bank.csv
  reconciler report --month 2025-01 --output-format json
  reconciler export baselane --statement-json sure.json`,
	Version:           getVersionString(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return NewCLIErrorHandler(os.Stderr).HandleError(err)
	}
	return 0
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.reconciler.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("db", store.DefaultPath, "path to the SQLite database")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text, json")

	settings.BindPFlag(config.KeyDatabasePath, rootCmd.PersistentFlags().Lookup("db"))
	settings.BindPFlag(config.KeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level"))
	settings.BindPFlag(config.KeyLogFormat, rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		settings.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		settings.AddConfigPath(home)
		settings.SetConfigName(".reconciler")
		settings.SetConfigType("yaml")
	}

	if err := settings.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); cfgFile != "" || !notFound {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, err).GetExitCode())
		}
		return
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", settings.ConfigFileUsed())
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {
	if verbose {
		settings.Set(config.KeyLogLevel, string(logger.DebugLevel))
	}
	logConfig, err := config.CreateLoggerConfig(settings)
	if err != nil {
		return err
	}
	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", logConfig.Output, err)
	}
	logger.SetGlobalLogger(log)
	return nil
}

// openStore opens the configured database and applies pending migrations.
func openStore(ctx context.Context) (*store.Store, error) {
	storeConfig, err := config.CreateStoreConfig(settings)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, storeConfig, logger.GetGlobalLogger())
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
