// Package config turns viper state into the typed configurations of the
// reconciler components.
//
// Every key can come from the config file, from a RECONCILER_ environment
// variable (database.path is RECONCILER_DATABASE_PATH) or from a bound flag.
package config

import (
	"fmt"
	"strings"
	"time"

	"rent-reconciliation-service/internal/extraction"
	"rent-reconciliation-service/internal/matcher"
	"rent-reconciliation-service/internal/notify"
	"rent-reconciliation-service/internal/reporter"
	"rent-reconciliation-service/internal/store"
	"rent-reconciliation-service/pkg/errors"
	"rent-reconciliation-service/pkg/logger"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "RECONCILER"

// Configuration keys
const (
	KeyDatabasePath      = "database.path"
	KeyDatabaseTimeout   = "database.busy_timeout"
	KeyLLMModel          = "llm.model"
	KeyLLMAPIKey         = "llm.api_key"
	KeyLLMTimeout        = "llm.timeout"
	KeyLLMConcurrency    = "llm.max_concurrency"
	KeyNotifyEnabled     = "notify.enabled"
	KeySMTPHost          = "notify.smtp.host"
	KeySMTPPort          = "notify.smtp.port"
	KeySMTPUsername      = "notify.smtp.username"
	KeySMTPPassword      = "notify.smtp.password"
	KeySMTPFrom          = "notify.smtp.from"
	KeySMTPTo            = "notify.smtp.to"
	KeyLogLevel          = "log.level"
	KeyLogFormat         = "log.format"
	KeyLogOutput         = "log.output"
	KeyLogFile           = "log.file"
	KeyHOAKeyword        = "matching.hoa_keyword"
	KeyMortgageKeyword   = "matching.mortgage_keyword"
	KeyMaxHintDistance   = "matching.max_hint_distance"
	KeyValidationStrict  = "validation.strict"
	KeyReportFormat      = "report.format"
	KeyReportByManager   = "report.by_manager"
	KeyReportMaxItems    = "report.max_items"
	KeyReportSortBy      = "report.sort_by_variance"
)

// New returns a viper instance with the environment layer and defaults set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults registers the default of every key so that AutomaticEnv sees it.
func SetDefaults(v *viper.Viper) {
	storeDefaults := store.DefaultConfig()
	v.SetDefault(KeyDatabasePath, storeDefaults.Path)
	v.SetDefault(KeyDatabaseTimeout, storeDefaults.BusyTimeout)

	gemini := extraction.DefaultGeminiConfig()
	v.SetDefault(KeyLLMModel, gemini.Model)
	v.SetDefault(KeyLLMAPIKey, "")
	v.SetDefault(KeyLLMTimeout, gemini.Timeout)
	v.SetDefault(KeyLLMConcurrency, 4)

	v.SetDefault(KeyNotifyEnabled, false)
	v.SetDefault(KeySMTPHost, "")
	v.SetDefault(KeySMTPPort, 587)
	v.SetDefault(KeySMTPUsername, "")
	v.SetDefault(KeySMTPPassword, "")
	v.SetDefault(KeySMTPFrom, "")
	v.SetDefault(KeySMTPTo, []string{})

	logDefaults := logger.DefaultConfig()
	v.SetDefault(KeyLogLevel, string(logDefaults.Level))
	v.SetDefault(KeyLogFormat, string(logDefaults.Format))
	v.SetDefault(KeyLogOutput, string(logDefaults.Output))
	v.SetDefault(KeyLogFile, "")

	matching := matcher.DefaultMatchingConfig()
	v.SetDefault(KeyHOAKeyword, matching.HOAKeyword)
	v.SetDefault(KeyMortgageKeyword, matching.MortgageKeyword)
	v.SetDefault(KeyMaxHintDistance, matching.MaxHintDistance)

	v.SetDefault(KeyValidationStrict, extraction.DefaultValidatorConfig().Strict)

	v.SetDefault(KeyReportFormat, string(reporter.FormatConsole))
	v.SetDefault(KeyReportByManager, false)
	v.SetDefault(KeyReportMaxItems, 0)
	v.SetDefault(KeyReportSortBy, false)
}

// CreateLoggerConfig creates the logger configuration
func CreateLoggerConfig(v *viper.Viper) (*logger.Config, error) {
	cfg := logger.DefaultConfig()
	cfg.Level = logger.Level(strings.ToLower(v.GetString(KeyLogLevel)))
	cfg.Format = logger.Format(strings.ToLower(v.GetString(KeyLogFormat)))
	cfg.Output = logger.Output(strings.ToLower(v.GetString(KeyLogOutput)))
	cfg.File = v.GetString(KeyLogFile)
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", cfg.Level, err)
	}
	return cfg, nil
}

// CreateStoreConfig creates the SQLite store configuration
func CreateStoreConfig(v *viper.Viper) (*store.Config, error) {
	cfg := &store.Config{
		Path:        v.GetString(KeyDatabasePath),
		BusyTimeout: v.GetDuration(KeyDatabaseTimeout),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExtractionConfig combines the model settings with the fan-out bound.
type ExtractionConfig struct {
	Gemini         *extraction.GeminiConfig
	MaxConcurrency int
}

// CreateExtractionConfig creates the statement extraction configuration
func CreateExtractionConfig(v *viper.Viper) (*ExtractionConfig, error) {
	cfg := &ExtractionConfig{
		Gemini: &extraction.GeminiConfig{
			Model:   v.GetString(KeyLLMModel),
			APIKey:  v.GetString(KeyLLMAPIKey),
			Timeout: v.GetDuration(KeyLLMTimeout),
		},
		MaxConcurrency: v.GetInt(KeyLLMConcurrency),
	}
	if err := cfg.Gemini.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "llm", cfg.Gemini.Model, err)
	}
	if cfg.MaxConcurrency < 1 {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyLLMConcurrency, cfg.MaxConcurrency,
			fmt.Errorf("max concurrency must be at least 1"))
	}
	return cfg, nil
}

// CreateMatchingConfig creates the matching configuration
func CreateMatchingConfig(v *viper.Viper) (*matcher.MatchingConfig, error) {
	cfg := &matcher.MatchingConfig{
		HOAKeyword:      v.GetString(KeyHOAKeyword),
		MortgageKeyword: v.GetString(KeyMortgageKeyword),
		MaxHintDistance: v.GetInt(KeyMaxHintDistance),
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", cfg.String(), err)
	}
	return cfg, nil
}

// CreateValidatorConfig creates the extraction schema validator configuration
func CreateValidatorConfig(v *viper.Viper) *extraction.ValidatorConfig {
	return &extraction.ValidatorConfig{Strict: v.GetBool(KeyValidationStrict)}
}

// NotifyConfig selects and configures the notifier.
type NotifyConfig struct {
	Enabled bool
	SMTP    *notify.SMTPConfig
}

// CreateNotifyConfig creates the notification configuration. The relay
// settings are only checked when notification is enabled.
func CreateNotifyConfig(v *viper.Viper) (*NotifyConfig, error) {
	cfg := &NotifyConfig{
		Enabled: v.GetBool(KeyNotifyEnabled),
		SMTP: &notify.SMTPConfig{
			Host:     v.GetString(KeySMTPHost),
			Port:     v.GetInt(KeySMTPPort),
			Username: v.GetString(KeySMTPUsername),
			Password: v.GetString(KeySMTPPassword),
			From:     v.GetString(KeySMTPFrom),
			To:       recipients(v.GetStringSlice(KeySMTPTo)),
		},
	}
	if cfg.Enabled {
		if err := cfg.SMTP.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// CreateReportConfig creates a report configuration for the specified output
// format; an empty format uses report.format.
func CreateReportConfig(v *viper.Viper, format string) (*reporter.ReportConfig, error) {
	if format == "" {
		format = v.GetString(KeyReportFormat)
	}

	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(strings.ToLower(format))
	config.IncludeByManager = v.GetBool(KeyReportByManager)
	config.MaxItems = v.GetInt(KeyReportMaxItems)
	config.SortByVariance = v.GetBool(KeyReportSortBy)

	switch config.Format {
	case reporter.FormatJSON:
		config.IncludeByManager = true
	case reporter.FormatCSV:
		config.CSVHeaders = true
		config.CSVDelimiter = ','
		config.IncludeManagers = false
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", format, err).
			WithSuggestion("use one of: console, json, csv")
	}
	return config, nil
}

// ValidateConfig checks the rules that span several sections.
func ValidateConfig(storeConfig *store.Config, extractionConfig *ExtractionConfig, notifyConfig *NotifyConfig) error {
	if storeConfig == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "database", nil, nil)
	}
	if err := storeConfig.Validate(); err != nil {
		return err
	}
	if extractionConfig != nil && extractionConfig.Gemini.Timeout < time.Second {
		return errors.ConfigurationError(errors.CodeInvalidConfig, KeyLLMTimeout, extractionConfig.Gemini.Timeout,
			fmt.Errorf("timeout must be at least one second"))
	}
	if notifyConfig != nil && notifyConfig.Enabled && notifyConfig.SMTP.Password != "" && notifyConfig.SMTP.Username == "" {
		return errors.ConfigurationError(errors.CodeInvalidConfig, KeySMTPUsername, "",
			fmt.Errorf("a password requires a username"))
	}
	return nil
}

// recipients accepts both list values and one comma-separated string, as
// environment variables provide.
func recipients(values []string) []string {
	var out []string
	for _, v := range values {
		for _, addr := range strings.Split(v, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				out = append(out, addr)
			}
		}
	}
	return out
}
