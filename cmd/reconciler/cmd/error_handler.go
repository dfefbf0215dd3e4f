package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"rent-reconciliation-service/internal/reconciler"
	"rent-reconciliation-service/pkg/errors"
	"rent-reconciliation-service/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	out     io.Writer
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler writing to out
func NewCLIErrorHandler(out io.Writer) *CLIErrorHandler {
	return &CLIErrorHandler{
		out:     out,
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: verbose,
	}
}

// HandleError prints err and returns the exit code for it
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	var stage *reconciler.StageError
	if se, ok := err.(*reconciler.StageError); ok {
		stage = se
		fmt.Fprintf(h.out, "Run failed at the %s stage.\n", se.Stage)
	}

	if summary, ok := errors.AsErrorSummary(err); ok {
		return h.handleErrorSummary(summary)
	}

	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		code := h.handleReconcilerError(reconcilerErr)
		if stage != nil && stage.Payload != nil && h.verbose {
			h.printPayload(stage.Payload)
		}
		return code
	}

	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(h.out, "\nContext:\n")
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", h.getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleErrorSummary(summary *errors.ErrorSummary) int {
	fmt.Fprintf(h.out, "Error: %d problems found\n", summary.Total)
	for i, e := range summary.Errors {
		if i >= 10 && !h.verbose {
			fmt.Fprintf(h.out, "  ... and %d more (use --verbose to list all)\n", summary.Total-10)
			break
		}
		fmt.Fprintf(h.out, "  %d. %s\n", i+1, e.Message)
	}
	if summary.Total > 0 {
		fmt.Fprintf(h.out, "\n%s\n", h.getCategoryHelp(summary.Errors[0].Category))
	}
	return summary.GetExitCode()
}

func (h *CLIErrorHandler) printPayload(payload interface{}) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fmt.Fprintf(h.out, "\nExtraction output: %v\n", payload)
		return
	}
	fmt.Fprintf(h.out, "\nExtraction output:\n%s\n", data)
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 3
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 3
	}

	if h.isDiskFullError(err) {
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 1
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check if the file exists and is readable
• Verify the file path is correct (use absolute paths if needed)`

	case errors.CategoryParse:
		return `Parse error help:
• Verify the CSV header names the required columns
• Ensure the file uses UTF-8 encoding
• Amounts may use $, thousands separators and (parentheses) for negatives`

	case errors.CategoryValidation:
		return `Validation error help:
• The extracted statement must use the field names property_management_name,
  statement_date and properties[].address/rent_amount/rent_paid/management_fees/net_income
• Dates use YYYY-MM-DD and amounts must be numbers
• Run with --verbose to see the extraction output`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and RECONCILER_* environment variables
• Verify configuration file syntax if using --config`

	case errors.CategoryExtraction:
		return `Extraction error help:
• Check that GEMINI_API_KEY (or llm.api_key) is set
• Retry the run; a statement JSON can be passed with --statement-json`

	case errors.CategoryPersistence:
		return `Database error help:
• Nothing from this run was saved; earlier results for the month are unchanged
• Check that the database file is writable (--db)`

	case errors.CategoryReconciliation:
		return `Reconciliation error help:
• Load property parameters with 'reconciler params load --file FILE'
• Check that the bank export covers the requested month`

	default:
		return `For more help:
• Use 'reconciler --help' for general help
• Use 'reconciler <command> --help' for command-specific help`
	}
}

// Error detection helpers

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if err == syscall.ENOSPC {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full")
}
