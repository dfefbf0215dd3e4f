package reporter

import (
	"encoding/csv"
	"fmt"
	"io"

	"rent-reconciliation-service/internal/models"
)

// BaselaneHeaders is the header row of the Baselane transaction import.
var BaselaneHeaders = []string{"Date", "Property Address", "Description", "Category", "Amount"}

// WriteBaselaneCSV writes one rent row per extracted property, dated with its
// statement date and booked at the property's net income.
func WriteBaselaneCSV(writer io.Writer, statements []models.ExtractedStatement) (int, error) {
	csvWriter := csv.NewWriter(writer)
	if err := csvWriter.Write(BaselaneHeaders); err != nil {
		return 0, fmt.Errorf("failed to write Baselane headers: %w", err)
	}

	rows := 0
	for _, stmt := range statements {
		date := stmt.StatementDate.Format(models.DateFormat)
		for _, p := range stmt.Properties {
			record := []string{
				date,
				p.Address,
				"Rent Payment - " + p.Address,
				"Rent",
				p.NetIncome.StringFixed(2),
			}
			if err := csvWriter.Write(record); err != nil {
				return rows, fmt.Errorf("failed to write Baselane row for %s: %w", p.Address, err)
			}
			rows++
		}
	}

	csvWriter.Flush()
	return rows, csvWriter.Error()
}
