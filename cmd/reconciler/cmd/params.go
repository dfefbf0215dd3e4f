package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/internal/parsers"
	"rent-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	paramsFile    string
	paramsHistory string
	paramsFormat  string
)

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Manage property parameters",
	Long: `Property parameters are the master data of every property: its manager,
expected rent, management fee, mortgage payment and HOA dues. Loading a new
set closes the current versions and makes the new rows current.`,
}

var paramsLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Replace the current property parameters from a CSV file",
	Long: `Load parses a parameter CSV and replaces the current set in one
transaction. Any invalid row rejects the whole file.

Expected columns (header names are case-insensitive):
  property_management_name, address, expected_rent, management_fee,
  mortgage_payment, hoa_fee, hoa_frequency (monthly, quarterly, semiannual, annual)

Example:
  reconciler params load --file properties.csv`,
	RunE: runParamsLoad,
}

var paramsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the current property parameters",
	Long: `List prints the current parameters, or every version of one property
with --history.

Examples:
  reconciler params list
  reconciler params list --history "407 Elm Ave" --output-format json`,
	RunE: runParamsList,
}

func init() {
	rootCmd.AddCommand(paramsCmd)
	paramsCmd.AddCommand(paramsLoadCmd, paramsListCmd)

	paramsLoadCmd.Flags().StringVar(&paramsFile, "file", "", "parameter CSV file (required)")
	paramsLoadCmd.MarkFlagRequired("file")

	paramsListCmd.Flags().StringVar(&paramsHistory, "history", "", "show every version of this address")
	paramsListCmd.Flags().StringVarP(&paramsFormat, "output-format", "f", "console", "output format: console, json")
}

func runParamsLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logger.GetGlobalLogger()

	if err := validateFileExists(paramsFile, "parameter file"); err != nil {
		return err
	}

	parser, err := parsers.NewParameterParser(parsers.DefaultParameterConfig(), log)
	if err != nil {
		return err
	}
	params, err := parser.ParseFile(ctx, paramsFile)
	if err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	closed, err := st.ReplaceParameters(ctx, params, time.Now())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d properties (%d previous versions closed)\n", len(params), closed)
	return nil
}

func runParamsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	var params []models.PropertyParameter
	if paramsHistory != "" {
		params, err = st.ParameterHistory(ctx, paramsHistory)
	} else {
		params, err = st.CurrentParameters(ctx)
	}
	if err != nil {
		return err
	}

	switch paramsFormat {
	case "json":
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(params)
	case "console":
		printParameters(cmd.OutOrStdout(), params)
		return nil
	default:
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json", paramsFormat)
	}
}

func printParameters(out io.Writer, params []models.PropertyParameter) {
	if len(params) == 0 {
		fmt.Fprintln(out, "No property parameters. Load them with 'reconciler params load --file FILE'.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tMANAGER\tRENT\tFEE\tMORTGAGE\tHOA\tFREQUENCY\tFROM\tTO")
	for _, p := range params {
		to := "current"
		if p.EffectiveTo != nil {
			to = p.EffectiveTo.Format(models.DateFormat)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Address,
			p.PropertyManagementName,
			p.ExpectedRent.StringFixed(2),
			p.ManagementFee.StringFixed(2),
			p.MortgagePayment.StringFixed(2),
			p.HOAFee.StringFixed(2),
			p.HOAFrequency,
			p.EffectiveFrom.Format(models.DateFormat),
			to)
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d rows\n", len(params))
}
