// Package reporter renders a month's reconciliation results.
//
// Supported output formats:
//   - Console: human-readable sections for terminal display
//   - JSON: the persisted rows plus the aggregated summaries
//   - CSV: one row per property log, optionally followed by misc expenses
//
// Example usage:
//
//	gen, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = gen.GenerateReport(results, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/internal/summary"

	"github.com/shopspring/decimal"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format"`

	IncludeMisc      bool `json:"include_misc" mapstructure:"include_misc"`
	IncludeManagers  bool `json:"include_managers" mapstructure:"include_managers"`
	IncludeByManager bool `json:"include_by_manager" mapstructure:"include_by_manager"`

	// SortByVariance lists the largest absolute rent variance first.
	SortByVariance bool `json:"sort_by_variance" mapstructure:"sort_by_variance"`

	// MaxItems caps console lists; zero means no cap.
	MaxItems int `json:"max_items" mapstructure:"max_items"`

	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:           FormatConsole,
		IncludeMisc:      true,
		IncludeManagers:  true,
		IncludeByManager: false,
		CSVDelimiter:     ',',
		CSVHeaders:       true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("max items cannot be negative, got %d", c.MaxItems)
	}
	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid csv delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator generates month reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

// GenerateReport writes a report of results to writer
func (rg *ReportGenerator) GenerateReport(results *models.RunResults, writer io.Writer) error {
	if results == nil {
		return fmt.Errorf("reconciliation results cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(results, writer)
	case FormatJSON:
		return rg.generateJSONReport(results, writer)
	case FormatCSV:
		return rg.generateCSVReport(results, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(results *models.RunResults, writer io.Writer) error {
	s := summary.Summarize(results.ReconLogs)

	fmt.Fprintf(writer, "RENT RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Month: %s\n", results.Month)
	if results.RunID != "" {
		fmt.Fprintf(writer, "Run:   %s\n", results.RunID)
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummary(s, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== PROPERTIES ===\n")
	rg.printReconLogs(results.ReconLogs, writer)
	fmt.Fprintf(writer, "\n")

	if rg.config.IncludeManagers && len(results.Summaries) > 0 {
		fmt.Fprintf(writer, "=== MANAGER TOTALS ===\n")
		rg.printManagerSummaries(results.Summaries, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeByManager && len(results.ReconLogs) > 0 {
		fmt.Fprintf(writer, "=== BY MANAGER ===\n")
		for _, g := range summary.ByManager(results.ReconLogs) {
			fmt.Fprintf(writer, "%s (%s):\n", g.PropertyManagementName, g.Month)
			rg.printSummary(g.Summary, writer)
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeMisc {
		fmt.Fprintf(writer, "=== MISCELLANEOUS EXPENSES ===\n")
		rg.printMiscLogs(results.MiscLogs, writer)
	}
	return nil
}

func (rg *ReportGenerator) generateJSONReport(results *models.RunResults, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rg.filterResultsForOutput(results))
}

func (rg *ReportGenerator) generateCSVReport(results *models.RunResults, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		headers := []string{
			"Type",
			"Month",
			"Manager",
			"Address",
			"Date",
			"Target_Rent",
			"Actual_Rent",
			"Rent_Variance",
			"Target_HOA",
			"Actual_HOA",
			"HOA_Variance",
			"Target_Mortgage",
			"Actual_Mortgage",
			"Mortgage_Variance",
			"Amount",
			"Status",
			"Notes",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, l := range rg.sortedLogs(results.ReconLogs) {
		record := []string{
			"Property",
			l.Month.String(),
			l.PropertyManagementName,
			l.Address,
			"",
			fixed(l.TargetRent),
			fixed(l.ActualRent),
			fixed(l.RentVariance),
			fixed(l.TargetHOA),
			fixed(l.ActualHOA),
			fixed(l.HOAVariance),
			fixed(l.TargetMortgage),
			fixed(l.ActualMortgage),
			fixed(l.MortgageVariance),
			fixed(l.BankDepositTotal),
			l.Status.String(),
			"",
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write property record: %w", err)
		}
	}

	if rg.config.IncludeMisc {
		for _, m := range results.MiscLogs {
			record := make([]string, 17)
			record[0] = "Misc Expense"
			record[1] = m.Month.String()
			record[4] = m.DateCleared.Format(models.DateFormat)
			record[14] = fixed(m.Amount)
			record[16] = fmt.Sprintf("%s (%s)", m.Description, m.CategorySuggestion)
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write misc expense record: %w", err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func (rg *ReportGenerator) printSummary(s summary.Summary, writer io.Writer) {
	fmt.Fprintf(writer, "Properties: %d (matched %d, discrepancy %d, missing %d)\n",
		s.PropertyCount,
		s.StatusCounts[models.StatusMatched],
		s.StatusCounts[models.StatusDiscrepancy],
		s.StatusCounts[models.StatusMissing])
	rg.printCategory("Rent", s.Rent, writer)
	rg.printCategory("HOA", s.HOA, writer)
	rg.printCategory("Mortgage", s.Mortgage, writer)
	fmt.Fprintf(writer, "  %-9s %s\n", "Deposits:", s.BankDepositTotal.StringFixed(2))
}

func (rg *ReportGenerator) printCategory(name string, c summary.CategorySummary, writer io.Writer) {
	fmt.Fprintf(writer, "  %-9s actual %s / target %s, verified %d/%d (%s%%)\n",
		name+":",
		c.Actual.StringFixed(2),
		c.Target.StringFixed(2),
		c.Verified, c.Total,
		c.Percentage.StringFixed(2))
}

func (rg *ReportGenerator) printReconLogs(logs []models.PropertyReconLog, writer io.Writer) {
	if len(logs) == 0 {
		fmt.Fprintf(writer, "  none\n")
		return
	}
	for i, l := range rg.sortedLogs(logs) {
		if rg.limitReached(i, len(logs), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. %s (%s) %s\n", i+1, l.Address, l.PropertyManagementName, l.Status)
		fmt.Fprintf(writer, "     rent %s/%s (%s)  hoa %s/%s (%s)  mortgage %s/%s (%s)\n",
			fixed(l.ActualRent), fixed(l.TargetRent), fixed(l.RentVariance),
			fixed(l.ActualHOA), fixed(l.TargetHOA), fixed(l.HOAVariance),
			fixed(l.ActualMortgage), fixed(l.TargetMortgage), fixed(l.MortgageVariance))
	}
}

func (rg *ReportGenerator) printManagerSummaries(sums []models.ManagerSummary, writer io.Writer) {
	for _, s := range sums {
		fmt.Fprintf(writer, "  %s: statement %s, bank %s (%d deposits), difference %s %s\n",
			s.PropertyManagementName,
			fixed(s.StatementTotal),
			fixed(s.BankTotal),
			s.DepositCount,
			fixed(s.Difference),
			s.Status)
		if s.SuggestedMerchant != "" {
			fmt.Fprintf(writer, "     closest merchant: %q\n", s.SuggestedMerchant)
		}
	}
}

func (rg *ReportGenerator) printMiscLogs(misc []models.MiscExpenseLog, writer io.Writer) {
	if len(misc) == 0 {
		fmt.Fprintf(writer, "  none\n")
		return
	}
	total := decimal.Zero
	for _, m := range misc {
		total = total.Add(m.Amount)
	}
	fmt.Fprintf(writer, "Total: %d rows, %s\n\n", len(misc), total.StringFixed(2))
	for i, m := range misc {
		if rg.limitReached(i, len(misc), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. %s %s %s (%s)\n",
			i+1,
			m.DateCleared.Format(models.DateFormat),
			fixed(m.Amount),
			m.Description,
			m.CategorySuggestion)
	}
}

func (rg *ReportGenerator) limitReached(i, total int, writer io.Writer) bool {
	if rg.config.MaxItems == 0 || i < rg.config.MaxItems {
		return false
	}
	fmt.Fprintf(writer, "  ... and %d more\n", total-rg.config.MaxItems)
	return true
}

func (rg *ReportGenerator) sortedLogs(logs []models.PropertyReconLog) []models.PropertyReconLog {
	if !rg.config.SortByVariance {
		return logs
	}
	out := make([]models.PropertyReconLog, len(logs))
	copy(out, logs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RentVariance.Abs().GreaterThan(out[j].RentVariance.Abs())
	})
	return out
}

func (rg *ReportGenerator) filterResultsForOutput(results *models.RunResults) map[string]interface{} {
	output := map[string]interface{}{
		"month":      results.Month,
		"summary":    summary.Summarize(results.ReconLogs),
		"recon_logs": nonNil(results.ReconLogs),
	}
	if results.RunID != "" {
		output["run_id"] = results.RunID
	}
	if rg.config.IncludeManagers {
		output["manager_summaries"] = nonNil(results.Summaries)
	}
	if rg.config.IncludeByManager {
		output["by_manager"] = summary.ByManager(results.ReconLogs)
	}
	if rg.config.IncludeMisc {
		output["misc_logs"] = nonNil(results.MiscLogs)
	}
	return output
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func fixed(d decimal.Decimal) string {
	return d.StringFixed(2)
}
