package cmd

import (
	"io"

	"rent-reconciliation-service/cmd/reconciler/config"
	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/internal/reporter"
	"rent-reconciliation-service/pkg/errors"

	"github.com/spf13/cobra"
)

var (
	reportMonth  string
	reportFormat string
	reportFile   string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render the stored results of a month",
	Long: `Report reads the results persisted by the last reconcile run of a month
and prints them with the category totals and verified percentages.

Examples:
  reconciler report --month 2025-01
  reconciler report --month 2025-01 --output-format csv --output-file january.csv`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVarP(&reportMonth, "month", "m", "", "month to report, YYYY-MM (required)")
	reportCmd.Flags().StringVarP(&reportFormat, "output-format", "f", "", "output format: console, json, csv (default report.format)")
	reportCmd.Flags().StringVarP(&reportFile, "output-file", "o", "", "output file path (default: stdout)")
	reportCmd.MarkFlagRequired("month")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, err := models.ParseMonth(reportMonth)
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidDate, "month", reportMonth, err).
			WithSuggestion("use the YYYY-MM format, e.g. 2025-01")
	}
	if err := validateOutputFile(reportFile); err != nil {
		return err
	}

	reportConfig, err := config.CreateReportConfig(settings, reportFormat)
	if err != nil {
		return err
	}
	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report", reportConfig.Format, err)
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	results := &models.RunResults{Month: m}
	if results.ReconLogs, err = st.ReconLogs(ctx, m); err != nil {
		return err
	}
	if results.MiscLogs, err = st.MiscLogs(ctx, m); err != nil {
		return err
	}
	if results.Summaries, err = st.ManagerSummaries(ctx, m); err != nil {
		return err
	}
	if len(results.ReconLogs) > 0 {
		results.RunID = results.ReconLogs[0].RunID
	}

	return writeOutput(reportFile, func(w io.Writer) error {
		return generator.GenerateReport(results, w)
	})
}
