package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"rent-reconciliation-service/cmd/reconciler/config"
	"rent-reconciliation-service/internal/extraction"
	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/internal/notify"
	"rent-reconciliation-service/internal/parsers"
	"rent-reconciliation-service/internal/reconciler"
	"rent-reconciliation-service/internal/reporter"
	"rent-reconciliation-service/internal/store"
	"rent-reconciliation-service/pkg/errors"
	"rent-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
)

// Flags for the reconcile command
var (
	month          string
	statementFiles []string
	statementJSON  []string
	bankFile       string
	noNotify       bool
	outputFormat   string
	outputFile     string
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a month of rent statements against the bank export",
	Long: `Reconcile extracts the property managers' rent statements, compares each
property's rent, HOA dues and mortgage payment with its current parameters and
stores the results for the month. Rerunning a month replaces its results.

This command requires:
- The month to reconcile (YYYY-MM)
- One or more statements, as documents (PDF or text) or extracted JSON
- The bank export (CSV or JSON); rows outside the month are ignored

Examples:
  # Extract two statements with the configured model
  reconciler reconcile --month 2025-01 --statement sure.pdf --statement gogo.pdf \
    --bank-file baselane.csv

  # Reuse statements extracted earlier, without sending the summary
  reconciler reconcile --month 2025-01 --statement-json sure.json --bank-file bank.json \
    --no-notify --output-format json --output-file january.json`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVarP(&month, "month", "m", "", "month to reconcile, YYYY-MM (required)")
	reconcileCmd.Flags().StringSliceVarP(&statementFiles, "statement", "s", nil, "rent statement document, PDF or text (repeatable)")
	reconcileCmd.Flags().StringSliceVar(&statementJSON, "statement-json", nil, "extracted statement JSON file (repeatable)")
	reconcileCmd.Flags().StringVarP(&bankFile, "bank-file", "b", "", "bank export, CSV or JSON (required)")
	reconcileCmd.Flags().BoolVar(&noNotify, "no-notify", false, "do not send the run summary")
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "", "output format: console, json, csv (default report.format)")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")

	reconcileCmd.MarkFlagRequired("month")
	reconcileCmd.MarkFlagRequired("bank-file")
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	if _, err := models.ParseMonth(month); err != nil {
		return errors.ValidationError(errors.CodeInvalidDate, "month", month, err).
			WithSuggestion("use the YYYY-MM format, e.g. 2025-01")
	}

	if len(statementFiles) == 0 && len(statementJSON) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "statement", nil, nil).
			WithSuggestion("pass --statement or --statement-json at least once")
	}

	for _, f := range statementFiles {
		if err := validateFileExists(f, "statement"); err != nil {
			return err
		}
	}
	for _, f := range statementJSON {
		if err := validateFileExists(f, "statement JSON"); err != nil {
			return err
		}
	}
	if err := validateFileExists(bankFile, "bank export"); err != nil {
		return err
	}

	if outputFormat != "" && !reporter.OutputFormat(strings.ToLower(outputFormat)).IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", outputFormat, nil).
			WithSuggestion("use one of: console, json, csv")
	}

	return validateOutputFile(outputFile)
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, description, nil,
			fmt.Errorf("%s path cannot be empty", description))
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}
	if info.IsDir() {
		return errors.FileError(errors.CodeInvalidFormat, filePath,
			fmt.Errorf("%s is a directory, expected a file", description))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}
	file.Close()
	return nil
}

func validateOutputFile(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, dir,
			fmt.Errorf("output directory does not exist"))
	}
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logger.GetGlobalLogger()

	m, _ := models.ParseMonth(month)
	log.WithFields(logger.Fields{
		"month":      m.String(),
		"statements": len(statementFiles) + len(statementJSON),
		"bank_file":  bankFile,
	}).Info("Starting reconciliation")

	docs, err := readDocuments(statementFiles)
	if err != nil {
		return err
	}
	raw, names, err := readRawStatements(statementJSON)
	if err != nil {
		return err
	}
	txns, err := readBankExport(ctx, bankFile, m, log)
	if err != nil {
		return err
	}

	storeConfig, extractionConfig, notifyConfig, err := loadRunConfig(len(docs) > 0, !noNotify)
	if err != nil {
		return err
	}
	source, err := buildStatementSource(ctx, extractionConfig, log)
	if err != nil {
		return err
	}
	notifier, err := buildNotifier(notifyConfig, log)
	if err != nil {
		return err
	}
	matchingConfig, err := config.CreateMatchingConfig(settings)
	if err != nil {
		return err
	}
	reportConfig, err := config.CreateReportConfig(settings, outputFormat)
	if err != nil {
		return err
	}
	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report", reportConfig.Format, err)
	}

	st, err := store.Open(ctx, storeConfig, log)
	if err != nil {
		return err
	}
	defer st.Close()

	orchestrator, err := reconciler.NewOrchestrator(st, source, notifier, &reconciler.Config{
		Matching:      matchingConfig,
		Preprocessing: reconciler.DefaultPreprocessingConfig(),
	}, log)
	if err != nil {
		return err
	}

	result, err := orchestrator.Run(ctx, &reconciler.Request{
		Month:             m,
		Documents:         docs,
		RawStatements:     raw,
		RawStatementNames: names,
		Transactions:      txns,
		SkipNotification:  noNotify,
	})
	if err != nil {
		return err
	}

	if err := writeOutput(outputFile, func(w io.Writer) error {
		return generator.GenerateReport(result.RunResults, w)
	}); err != nil {
		return err
	}

	if result.NotificationErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: results saved but the summary was not sent: %v\n", result.NotificationErr)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Run %s for %s finished in %v: %d properties, %d misc expenses.\n",
			result.RunID, result.Month, result.Duration, len(result.ReconLogs), len(result.MiscLogs))
	}
	return nil
}

func readDocuments(paths []string) ([]extraction.Document, error) {
	docs := make([]extraction.Document, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		docs = append(docs, extraction.DocumentFromFile(path, data))
	}
	return docs, nil
}

// readRawStatements loads extracted statements; a file holds one JSON object
// or an array of them.
func readRawStatements(paths []string) ([]map[string]interface{}, []string, error) {
	var raw []map[string]interface{}
	var names []string
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, errors.FileError(errors.CodeFilePermission, path, err)
		}

		objects, err := decodeStatements(data)
		if err != nil {
			return nil, nil, errors.FileError(errors.CodeFileCorrupted, path, err).
				WithSuggestion("the file must contain a JSON object or an array of objects")
		}
		for i, obj := range objects {
			name := filepath.Base(path)
			if len(objects) > 1 {
				name = fmt.Sprintf("%s#%d", name, i+1)
			}
			raw = append(raw, obj)
			names = append(names, name)
		}
	}
	return raw, names, nil
}

func decodeStatements(data []byte) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(string(data))
	decoder := json.NewDecoder(strings.NewReader(trimmed))
	decoder.UseNumber()

	if strings.HasPrefix(trimmed, "[") {
		var objects []map[string]interface{}
		if err := decoder.Decode(&objects); err != nil {
			return nil, err
		}
		return objects, nil
	}

	var obj map[string]interface{}
	if err := decoder.Decode(&obj); err != nil {
		return nil, err
	}
	return []map[string]interface{}{obj}, nil
}

func readBankExport(ctx context.Context, path string, m models.Month, log logger.Logger) ([]models.BankTransaction, error) {
	parser, err := parsers.NewBankExportParser(parsers.DefaultBankExportConfig(), log)
	if err != nil {
		return nil, err
	}
	txns, stats, err := parser.ParseFile(ctx, path)
	if err != nil {
		return nil, err
	}

	inMonth, dropped := parsers.FilterMonth(txns, m)
	log.WithFields(logger.Fields{
		"file":         path,
		"rows":         stats.RecordsParsed,
		"in_month":     len(inMonth),
		"out_of_month": dropped,
		"duplicates":   stats.Duplicates,
	}).Info("Bank export loaded")
	return inMonth, nil
}

// loadRunConfig builds and cross-checks the configs a run needs. The
// extraction config is only built when there are documents to extract and the
// notify config only when notification is on.
func loadRunConfig(extract, notifyOn bool) (*store.Config, *config.ExtractionConfig, *config.NotifyConfig, error) {
	storeConfig, err := config.CreateStoreConfig(settings)
	if err != nil {
		return nil, nil, nil, err
	}

	var extractionConfig *config.ExtractionConfig
	if extract {
		if extractionConfig, err = config.CreateExtractionConfig(settings); err != nil {
			return nil, nil, nil, err
		}
	}

	var notifyConfig *config.NotifyConfig
	if notifyOn {
		if notifyConfig, err = config.CreateNotifyConfig(settings); err != nil {
			return nil, nil, nil, err
		}
	}

	if err := config.ValidateConfig(storeConfig, extractionConfig, notifyConfig); err != nil {
		return nil, nil, nil, err
	}
	return storeConfig, extractionConfig, notifyConfig, nil
}

// buildStatementSource creates the extraction runner. Without an extraction
// config the runner only validates extracted JSON.
func buildStatementSource(ctx context.Context, extractionConfig *config.ExtractionConfig, log logger.Logger) (*extraction.Runner, error) {
	validator := extraction.NewValidator(config.CreateValidatorConfig(settings))
	if extractionConfig == nil {
		return extraction.NewRunner(nil, validator, 1, log), nil
	}

	gemini, err := extraction.NewGeminiExtractor(ctx, extractionConfig.Gemini, log)
	if err != nil {
		return nil, err
	}
	return extraction.NewRunner(gemini, validator, extractionConfig.MaxConcurrency, log), nil
}

// buildNotifier returns nil when notification is off, the SMTP notifier when
// it is enabled in config and the log notifier otherwise.
func buildNotifier(notifyConfig *config.NotifyConfig, log logger.Logger) (notify.Notifier, error) {
	if notifyConfig == nil {
		return nil, nil
	}
	if !notifyConfig.Enabled {
		return notify.NewLogNotifier(log), nil
	}
	smtpNotifier, err := notify.NewSMTPNotifier(notifyConfig.SMTP, log)
	if err != nil {
		return nil, err
	}
	return smtpNotifier, nil
}

func writeOutput(path string, write func(w io.Writer) error) error {
	if path == "" {
		return write(os.Stdout)
	}

	out, err := os.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	if err := write(out); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return nil
}
