package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownAddress is recorded for extracted properties whose address was not captured.
const UnknownAddress = "Unknown Address"

// DateFormat is the on-disk and report format for calendar dates.
const DateFormat = "2006-01-02"

// Status is the per-property reconciliation verdict.
type Status string

const (
	StatusMatched     Status = "MATCHED"
	StatusDiscrepancy Status = "DISCREPANCY"
	StatusMissing     Status = "MISSING"
)

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsValid checks if the status is one of the known verdicts
func (s Status) IsValid() bool {
	return s == StatusMatched || s == StatusDiscrepancy || s == StatusMissing
}

// HOAFrequency is how often a property's HOA dues are billed.
type HOAFrequency string

const (
	HOAMonthly    HOAFrequency = "monthly"
	HOAQuarterly  HOAFrequency = "quarterly"
	HOASemiannual HOAFrequency = "semiannual"
	HOAAnnual     HOAFrequency = "annual"
)

// ParseHOAFrequency accepts the frequency names case-insensitively; empty means monthly.
func ParseHOAFrequency(s string) (HOAFrequency, error) {
	switch f := HOAFrequency(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return HOAMonthly, nil
	case HOAMonthly, HOAQuarterly, HOASemiannual, HOAAnnual:
		return f, nil
	case "semi-annual", "semiannually":
		return HOASemiannual, nil
	case "yearly", "annually":
		return HOAAnnual, nil
	default:
		return "", fmt.Errorf("unknown HOA frequency '%s'", s)
	}
}

// IsMonthly reports whether dues are expected every month. The zero value is monthly.
func (f HOAFrequency) IsMonthly() bool {
	return f == "" || f == HOAMonthly
}

// ExtractedStatement is one validated rent statement produced by the extraction step.
type ExtractedStatement struct {
	SourceFile             string              `json:"source_file,omitempty"`
	StatementDate          time.Time           `json:"statement_date"`
	PropertyManagementName string              `json:"property_management_name"`
	Properties             []ExtractedProperty `json:"properties"`
}

// String returns a short description of the statement
func (s *ExtractedStatement) String() string {
	return fmt.Sprintf("Statement{Manager: %s, Date: %s, Properties: %d}",
		s.PropertyManagementName, s.StatementDate.Format(DateFormat), len(s.Properties))
}

// ExtractedProperty holds the per-property figures of a statement.
type ExtractedProperty struct {
	Address        string          `json:"address"`
	RentAmount     decimal.Decimal `json:"rent_amount"`
	RentPaid       decimal.Decimal `json:"rent_paid"`
	ManagementFees decimal.Decimal `json:"management_fees"`
	NetIncome      decimal.Decimal `json:"net_income"`
}

// NetContribution is the amount the manager should have remitted for the property.
// Statements that omit net income fall back to rent paid less fees.
func (p ExtractedProperty) NetContribution() decimal.Decimal {
	if !p.NetIncome.IsZero() {
		return p.NetIncome
	}
	return p.RentPaid.Sub(p.ManagementFees)
}

// PropertyParameter is one version of a property's master data.
type PropertyParameter struct {
	ID                     int64           `json:"id,omitempty"`
	PropertyManagementName string          `json:"property_management_name"`
	Address                string          `json:"address"`
	ExpectedRent           decimal.Decimal `json:"expected_rent"`
	ManagementFee          decimal.Decimal `json:"management_fee"`
	MortgagePayment        decimal.Decimal `json:"mortgage_payment"`
	HOAFee                 decimal.Decimal `json:"hoa_fee"`
	HOAFrequency           HOAFrequency    `json:"hoa_frequency"`
	EffectiveFrom          time.Time       `json:"effective_from"`
	EffectiveTo            *time.Time      `json:"effective_to,omitempty"`
}

// IsCurrent reports whether this is the open version of the property.
func (p *PropertyParameter) IsCurrent() bool {
	return p.EffectiveTo == nil
}

// Validate checks the parameter fields
func (p *PropertyParameter) Validate() error {
	if strings.TrimSpace(p.Address) == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if strings.TrimSpace(p.PropertyManagementName) == "" {
		return fmt.Errorf("property management name cannot be empty for %s", p.Address)
	}
	for name, v := range map[string]decimal.Decimal{
		"expected_rent":    p.ExpectedRent,
		"management_fee":   p.ManagementFee,
		"mortgage_payment": p.MortgagePayment,
		"hoa_fee":          p.HOAFee,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%s cannot be negative for %s, got %s", name, p.Address, v.String())
		}
	}
	if _, err := ParseHOAFrequency(string(p.HOAFrequency)); err != nil {
		return err
	}
	if p.EffectiveTo != nil && p.EffectiveTo.Before(p.EffectiveFrom) {
		return fmt.Errorf("effective_to precedes effective_from for %s", p.Address)
	}
	return nil
}

// BankTransaction is one row of the bank export.
type BankTransaction struct {
	Date        time.Time       `json:"date"`
	Merchant    string          `json:"merchant"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// String returns a string representation of the transaction
func (t *BankTransaction) String() string {
	return fmt.Sprintf("BankTransaction{Date: %s, Merchant: %s, Amount: %s}",
		t.Date.Format(DateFormat), t.Merchant, t.Amount.StringFixed(2))
}

// PropertyReconLog is the reconciliation result for one property in one month.
type PropertyReconLog struct {
	ID                     int64           `json:"id,omitempty"`
	RunID                  string          `json:"run_id"`
	Month                  Month           `json:"month"`
	PropertyManagementName string          `json:"property_management_name"`
	Address                string          `json:"address"`
	TargetRent             decimal.Decimal `json:"target_rent"`
	ActualRent             decimal.Decimal `json:"actual_rent"`
	RentVariance           decimal.Decimal `json:"rent_variance"`
	TargetHOA              decimal.Decimal `json:"target_hoa"`
	ActualHOA              decimal.Decimal `json:"actual_hoa"`
	HOAVariance            decimal.Decimal `json:"hoa_variance"`
	TargetMortgage         decimal.Decimal `json:"target_mortgage"`
	ActualMortgage         decimal.Decimal `json:"actual_mortgage"`
	MortgageVariance       decimal.Decimal `json:"mortgage_variance"`
	BankDepositTotal       decimal.Decimal `json:"bank_deposit_total"`
	Status                 Status          `json:"status"`
}

// MiscExpenseLog is a bank transaction attributable to no known property, category or manager.
type MiscExpenseLog struct {
	ID                 int64           `json:"id,omitempty"`
	RunID              string          `json:"run_id"`
	Month              Month           `json:"month"`
	DateCleared        time.Time       `json:"date_cleared"`
	Description        string          `json:"description"`
	Amount             decimal.Decimal `json:"amount"`
	CategorySuggestion string          `json:"category_suggestion"`
}

// ManagerSummary compares a manager's statement total with its bank deposits.
type ManagerSummary struct {
	RunID                  string          `json:"run_id"`
	Month                  Month           `json:"month"`
	PropertyManagementName string          `json:"property_management_name"`
	StatementTotal         decimal.Decimal `json:"statement_total"`
	BankTotal              decimal.Decimal `json:"bank_total"`
	Difference             decimal.Decimal `json:"difference"`
	DepositCount           int             `json:"deposit_count"`
	Status                 Status          `json:"status"`
	SuggestedMerchant      string          `json:"suggested_merchant,omitempty"`
}

// StatementRecord archives one extracted property line for a month.
type StatementRecord struct {
	RunID                  string    `json:"run_id"`
	Month                  Month     `json:"month"`
	SourceFile             string    `json:"source_file"`
	StatementDate          time.Time `json:"statement_date"`
	PropertyManagementName string    `json:"property_management_name"`
	ExtractedProperty
}

// ParseDecimalFromString parses an amount, tolerating currency symbols and thousand separators
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

var dateFormats = []string{
	"01/02/2006",
	"1/2/2006",
	DateFormat,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/06",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ParseDate parses a calendar date in any of the formats seen in statements and bank exports.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	var lastErr error
	for _, format := range dateFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// RunResults is everything one reconciliation run writes for its month.
type RunResults struct {
	RunID      string             `json:"run_id"`
	Month      Month              `json:"month"`
	ReconLogs  []PropertyReconLog `json:"recon_logs"`
	MiscLogs   []MiscExpenseLog   `json:"misc_logs"`
	Summaries  []ManagerSummary   `json:"manager_summaries"`
	Statements []StatementRecord  `json:"statements"`
}
