package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"rent-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

var january = models.Month{Year: 2025, Month: time.January}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func createSampleResults() *models.RunResults {
	return &models.RunResults{
		RunID: "run-1",
		Month: january,
		ReconLogs: []models.PropertyReconLog{
			{
				RunID: "run-1", Month: january,
				PropertyManagementName: "Sure Realty", Address: "2560 Coventry St",
				TargetRent: dec("1833.00"), ActualRent: dec("1833.00"), RentVariance: dec("0"),
				TargetHOA: dec("0"), ActualHOA: dec("0"), HOAVariance: dec("0"),
				TargetMortgage: dec("0"), ActualMortgage: dec("0"), MortgageVariance: dec("0"),
				BankDepositTotal: dec("1833.00"), Status: models.StatusMatched,
			},
			{
				RunID: "run-1", Month: january,
				PropertyManagementName: "Gogo Property", Address: "407 Elm Ave",
				TargetRent: dec("1500.00"), ActualRent: dec("1400.00"), RentVariance: dec("-100.00"),
				TargetHOA: dec("150.00"), ActualHOA: dec("150.00"), HOAVariance: dec("0"),
				TargetMortgage: dec("900.00"), ActualMortgage: dec("900.00"), MortgageVariance: dec("0"),
				BankDepositTotal: dec("1400.00"), Status: models.StatusDiscrepancy,
			},
		},
		MiscLogs: []models.MiscExpenseLog{
			{
				RunID: "run-1", Month: january,
				DateCleared: time.Date(2025, time.January, 4, 0, 0, 0, 0, time.UTC),
				Description: "Order 113-55", Amount: dec("-42.17"), CategorySuggestion: "Amazon.com",
			},
		},
		Summaries: []models.ManagerSummary{
			{
				RunID: "run-1", Month: january, PropertyManagementName: "Gogo Property",
				StatementTotal: dec("1500.00"), BankTotal: dec("0"), Difference: dec("1500.00"),
				Status: models.StatusDiscrepancy, SuggestedMerchant: "Goggo Property",
			},
		},
	}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{
			name:        "default config",
			config:      nil,
			expectError: false,
		},
		{
			name:        "valid config",
			config:      DefaultReportConfig(),
			expectError: false,
		},
		{
			name:        "invalid format",
			config:      &ReportConfig{Format: "invalid"},
			expectError: true,
		},
		{
			name:        "negative max items",
			config:      &ReportConfig{Format: FormatConsole, MaxItems: -1},
			expectError: true,
		},
		{
			name:        "csv without delimiter",
			config:      &ReportConfig{Format: FormatCSV},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if generator == nil {
					t.Errorf("expected generator but got nil")
				}
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{"invalid", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if tt.format.IsValid() != tt.valid {
				t.Errorf("expected IsValid() = %v for format %s", tt.valid, tt.format)
			}
		})
	}
}

func TestGenerateReport(t *testing.T) {
	results := createSampleResults()

	consoleWithGroups := DefaultReportConfig()
	consoleWithGroups.IncludeByManager = true

	jsonConfig := DefaultReportConfig()
	jsonConfig.Format = FormatJSON

	csvConfig := DefaultReportConfig()
	csvConfig.Format = FormatCSV

	tests := []struct {
		name        string
		config      *ReportConfig
		results     *models.RunResults
		expectError bool
		checkOutput func(t *testing.T, output string)
	}{
		{
			name:    "console format",
			config:  consoleWithGroups,
			results: results,
			checkOutput: func(t *testing.T, output string) {
				for _, want := range []string{
					"RENT RECONCILIATION REPORT",
					"Month: 2025-01",
					"Properties: 2 (matched 1, discrepancy 1, missing 0)",
					"Rent:     actual 3233.00 / target 3333.00, verified 1/2 (50.00%)",
					"Deposits: 3233.00",
					"407 Elm Ave (Gogo Property) DISCREPANCY",
					"closest merchant: \"Goggo Property\"",
					"=== BY MANAGER ===",
					"Total: 1 rows, -42.17",
					"Amazon.com",
				} {
					if !strings.Contains(output, want) {
						t.Errorf("console output should contain %q\n%s", want, output)
					}
				}
			},
		},
		{
			name:    "JSON format",
			config:  jsonConfig,
			results: results,
			checkOutput: func(t *testing.T, output string) {
				var jsonData map[string]interface{}
				if err := json.Unmarshal([]byte(output), &jsonData); err != nil {
					t.Fatalf("output should be valid JSON: %v", err)
				}
				for _, key := range []string{"month", "run_id", "summary", "recon_logs", "manager_summaries", "misc_logs"} {
					if _, exists := jsonData[key]; !exists {
						t.Errorf("JSON output should contain %s", key)
					}
				}
				if _, exists := jsonData["by_manager"]; exists {
					t.Errorf("JSON output should omit by_manager by default")
				}
				if jsonData["month"] != "2025-01" {
					t.Errorf("expected month 2025-01, got %v", jsonData["month"])
				}
			},
		},
		{
			name:    "CSV format",
			config:  csvConfig,
			results: results,
			checkOutput: func(t *testing.T, output string) {
				records, err := csv.NewReader(strings.NewReader(output)).ReadAll()
				if err != nil {
					t.Fatalf("output should be valid CSV: %v", err)
				}
				if len(records) != 4 {
					t.Fatalf("expected header, 2 properties and 1 misc row, got %d", len(records))
				}
				if records[0][0] != "Type" || records[0][15] != "Status" {
					t.Errorf("unexpected headers %v", records[0])
				}
				if records[2][3] != "407 Elm Ave" || records[2][7] != "-100.00" {
					t.Errorf("unexpected property row %v", records[2])
				}
				if records[3][0] != "Misc Expense" || records[3][4] != "2025-01-04" {
					t.Errorf("unexpected misc row %v", records[3])
				}
			},
		},
		{
			name:        "nil results",
			config:      DefaultReportConfig(),
			results:     nil,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if err != nil {
				t.Fatalf("failed to create report generator: %v", err)
			}

			var buffer bytes.Buffer
			err = generator.GenerateReport(tt.results, &buffer)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.checkOutput != nil {
				tt.checkOutput(t, buffer.String())
			}
		})
	}
}

func TestConsoleReportEmptyMonth(t *testing.T) {
	generator, _ := NewReportGenerator(nil)

	var buffer bytes.Buffer
	if err := generator.GenerateReport(&models.RunResults{Month: january}, &buffer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buffer.String()
	if !strings.Contains(output, "Properties: 0") {
		t.Errorf("expected an empty summary, got\n%s", output)
	}
	if strings.Contains(output, "Run:") {
		t.Errorf("expected no run line for persisted results without a run id")
	}
}

func TestConsoleReportSortAndLimit(t *testing.T) {
	config := DefaultReportConfig()
	config.SortByVariance = true
	config.MaxItems = 1
	config.IncludeMisc = false
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create report generator: %v", err)
	}

	var buffer bytes.Buffer
	if err := generator.GenerateReport(createSampleResults(), &buffer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buffer.String()

	if !strings.Contains(output, "1. 407 Elm Ave") {
		t.Errorf("expected the largest variance first\n%s", output)
	}
	if !strings.Contains(output, "... and 1 more") {
		t.Errorf("expected the list to be capped\n%s", output)
	}
	if strings.Contains(output, "MISCELLANEOUS") {
		t.Errorf("expected misc section to be omitted")
	}
}

func TestWriteBaselaneCSV(t *testing.T) {
	statements := []models.ExtractedStatement{
		{
			StatementDate:          time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC),
			PropertyManagementName: "Sure Realty",
			Properties: []models.ExtractedProperty{
				{Address: "2560 Coventry St", RentPaid: dec("1833.00"), NetIncome: dec("1567.50")},
				{Address: "9 Oak Ct, Unit 2", RentPaid: dec("1200.00"), NetIncome: dec("1080")},
			},
		},
	}

	var buffer bytes.Buffer
	rows, err := WriteBaselaneCSV(&buffer, statements)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows != 2 {
		t.Errorf("expected 2 rows, got %d", rows)
	}

	want := "Date,Property Address,Description,Category,Amount\n" +
		"2025-01-31,2560 Coventry St,Rent Payment - 2560 Coventry St,Rent,1567.50\n" +
		"2025-01-31,\"9 Oak Ct, Unit 2\",\"Rent Payment - 9 Oak Ct, Unit 2\",Rent,1080.00\n"
	if buffer.String() != want {
		t.Errorf("unexpected CSV\nwant:\n%s\ngot:\n%s", want, buffer.String())
	}
}
