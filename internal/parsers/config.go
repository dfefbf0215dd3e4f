package parsers

import (
	"fmt"
	"strings"
)

// Standard column names. Each maps to the header aliases accepted for it.
const (
	ColumnDate        = "date"
	ColumnMerchant    = "merchant"
	ColumnDescription = "description"
	ColumnAmount      = "amount"

	ColumnManager         = "property_management_name"
	ColumnAddress         = "address"
	ColumnExpectedRent    = "expected_rent"
	ColumnManagementFee   = "management_fee"
	ColumnMortgagePayment = "mortgage_payment"
	ColumnHOAFee          = "hoa_fee"
	ColumnHOAFrequency    = "hoa_frequency"
)

// BankExportConfig describes the layout of a bank export.
type BankExportConfig struct {
	Name          string              `json:"name" mapstructure:"name"`
	Delimiter     rune                `json:"delimiter" mapstructure:"delimiter"`
	ColumnAliases map[string][]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`
	// WarnDuplicates logs rows repeated with the same date, merchant, description and amount.
	WarnDuplicates bool `json:"warn_duplicates" mapstructure:"warn_duplicates"`
}

// DefaultBankExportConfig accepts the header spellings seen in common bank downloads.
func DefaultBankExportConfig() *BankExportConfig {
	return &BankExportConfig{
		Name:      "standard",
		Delimiter: ',',
		ColumnAliases: map[string][]string{
			ColumnDate:        {"Date", "Transaction Date", "Posted Date", "Posting Date", "Date Cleared"},
			ColumnMerchant:    {"Merchant", "Payee", "Name", "Merchant Name"},
			ColumnDescription: {"Description", "Memo", "Details", "Transaction Description"},
			ColumnAmount:      {"Amount", "Transaction Amount"},
		},
		WarnDuplicates: true,
	}
}

// Validate checks if the bank export configuration is valid
func (c *BankExportConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("bank export name cannot be empty")
	}
	if c.Delimiter == 0 {
		return fmt.Errorf("delimiter cannot be empty")
	}
	for _, col := range []string{ColumnDate, ColumnAmount} {
		if len(c.ColumnAliases[col]) == 0 {
			return fmt.Errorf("no header aliases configured for column %s", col)
		}
	}
	return nil
}

// Aliases returns the accepted headers for a standard column, falling back to
// the column name itself.
func (c *BankExportConfig) Aliases(column string) []string {
	if aliases := c.ColumnAliases[column]; len(aliases) > 0 {
		return aliases
	}
	return []string{column}
}

// ParameterConfig describes the layout of a property parameter upload.
type ParameterConfig struct {
	Delimiter     rune                `json:"delimiter" mapstructure:"delimiter"`
	ColumnAliases map[string][]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`
}

// DefaultParameterConfig returns the header spellings accepted for parameter uploads.
func DefaultParameterConfig() *ParameterConfig {
	return &ParameterConfig{
		Delimiter: ',',
		ColumnAliases: map[string][]string{
			ColumnManager:         {"property_management_name", "Property Management", "Manager"},
			ColumnAddress:         {"address", "Property Address"},
			ColumnExpectedRent:    {"expected_rent", "Expected Rent", "Rent"},
			ColumnManagementFee:   {"management_fee", "Management Fee"},
			ColumnMortgagePayment: {"mortgage_payment", "Mortgage Payment", "Mortgage"},
			ColumnHOAFee:          {"hoa_fee", "HOA Fee", "HOA"},
			ColumnHOAFrequency:    {"hoa_frequency", "HOA Frequency"},
		},
	}
}

// Validate checks the parameter configuration
func (c *ParameterConfig) Validate() error {
	if c.Delimiter == 0 {
		return fmt.Errorf("delimiter cannot be empty")
	}
	for _, col := range []string{ColumnManager, ColumnAddress} {
		if len(c.ColumnAliases[col]) == 0 {
			return fmt.Errorf("no header aliases configured for column %s", col)
		}
	}
	return nil
}

// Aliases returns the accepted headers for a standard column.
func (c *ParameterConfig) Aliases(column string) []string {
	if aliases := c.ColumnAliases[column]; len(aliases) > 0 {
		return aliases
	}
	return []string{column}
}
