package cmd

import (
	"fmt"
	"io"
	"os"

	"rent-reconciliation-service/cmd/reconciler/config"
	"rent-reconciliation-service/internal/extraction"
	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/internal/reporter"
	"rent-reconciliation-service/pkg/errors"
	"rent-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	exportStatementJSON []string
	exportMonth         string
	exportFile          string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export extracted statements to other tools",
}

var baselaneCmd = &cobra.Command{
	Use:   "baselane",
	Short: "Write the Baselane transaction import CSV",
	Long: `Baselane writes one rent row per extracted property, dated with the
statement date and booked at the property's net income. Statements come from
extracted JSON files or from the archive of a reconciled month.

Examples:
  reconciler export baselane --statement-json sure.json --output-file baselane.csv
  reconciler export baselane --month 2025-01`,
	RunE: runBaselaneExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(baselaneCmd)

	baselaneCmd.Flags().StringSliceVar(&exportStatementJSON, "statement-json", nil, "extracted statement JSON file (repeatable)")
	baselaneCmd.Flags().StringVarP(&exportMonth, "month", "m", "", "export the statements archived for this month, YYYY-MM")
	baselaneCmd.Flags().StringVarP(&exportFile, "output-file", "o", "", "output file path (default: stdout)")
	baselaneCmd.MarkFlagsOneRequired("statement-json", "month")
	baselaneCmd.MarkFlagsMutuallyExclusive("statement-json", "month")
}

func runBaselaneExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logger.GetGlobalLogger()

	if err := validateOutputFile(exportFile); err != nil {
		return err
	}

	var statements []models.ExtractedStatement
	if exportMonth != "" {
		m, err := models.ParseMonth(exportMonth)
		if err != nil {
			return errors.ValidationError(errors.CodeInvalidDate, "month", exportMonth, err)
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.Statements(ctx, m)
		if err != nil {
			return err
		}
		statements = statementsFromRecords(records)
	} else {
		raw, names, err := readRawStatements(exportStatementJSON)
		if err != nil {
			return err
		}
		runner := extraction.NewRunner(nil, extraction.NewValidator(config.CreateValidatorConfig(settings)), 1, log)
		if statements, err = runner.ValidateAll(raw, names); err != nil {
			return err
		}
	}

	var rows int
	err := writeOutput(exportFile, func(w io.Writer) error {
		var err error
		rows, err = reporter.WriteBaselaneCSV(w, statements)
		return err
	})
	if err != nil {
		return err
	}

	if exportFile != "" {
		fmt.Fprintf(os.Stderr, "Wrote %d rows to %s\n", rows, exportFile)
	}
	return nil
}

// statementsFromRecords regroups archived property lines into their statements,
// keeping the archive order.
func statementsFromRecords(records []models.StatementRecord) []models.ExtractedStatement {
	type key struct {
		source  string
		manager string
		date    string
	}
	index := make(map[key]int)
	var out []models.ExtractedStatement
	for _, r := range records {
		k := key{r.SourceFile, r.PropertyManagementName, r.StatementDate.Format(models.DateFormat)}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, models.ExtractedStatement{
				SourceFile:             r.SourceFile,
				StatementDate:          r.StatementDate,
				PropertyManagementName: r.PropertyManagementName,
			})
		}
		out[i].Properties = append(out[i].Properties, r.ExtractedProperty)
	}
	return out
}
