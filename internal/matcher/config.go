// Package matcher ties free-text identifiers to properties and managers.
//
// Properties are identified by the house-number token of their address: the
// leading run of digits. Two addresses refer to the same property only when
// both tokens exist and are character-equal. Bank rows are attributed to a
// property when their description carries the token as a whole digit run, and
// to a category when their merchant names the category keyword.
//
// Managers are matched on the merchant text of bank rows, case-insensitively,
// by either the full manager name or its first word.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	m := matcher.NewMatcher(config)
//
//	idx := matcher.NewTransactionIndex(transactions)
//	hoa := m.CategoryTotal(idx, "407", matcher.CategoryHOA)
//	deposits, n := matcher.SumManagerDeposits(transactions, "GOGO PROPERTY")
package matcher

import (
	"fmt"
	"strings"
)

// Category is a bank-side expense category attributed to a property.
type Category int

const (
	// CategoryHOA covers homeowners' association dues.
	CategoryHOA Category = iota
	// CategoryMortgage covers mortgage payments.
	CategoryMortgage
)

// String returns the string representation of Category
func (c Category) String() string {
	switch c {
	case CategoryHOA:
		return "hoa"
	case CategoryMortgage:
		return "mortgage"
	default:
		return "unknown"
	}
}

// MatchingConfig holds the keywords and thresholds used when attributing bank rows.
type MatchingConfig struct {
	// HOAKeyword marks a merchant as an HOA payee.
	HOAKeyword string `json:"hoa_keyword" mapstructure:"hoa_keyword"`

	// MortgageKeyword marks a merchant as a mortgage servicer.
	MortgageKeyword string `json:"mortgage_keyword" mapstructure:"mortgage_keyword"`

	// MaxHintDistance bounds the edit distance of a nearest-merchant hint.
	// Zero disables hints.
	MaxHintDistance int `json:"max_hint_distance" mapstructure:"max_hint_distance"`
}

// DefaultMatchingConfig returns the keywords used by the bank exports seen so far.
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		HOAKeyword:      "HOA",
		MortgageKeyword: "Mortgage",
		MaxHintDistance: 8,
	}
}

// Validate checks the configuration
func (c *MatchingConfig) Validate() error {
	if strings.TrimSpace(c.HOAKeyword) == "" {
		return fmt.Errorf("hoa keyword cannot be empty")
	}
	if strings.TrimSpace(c.MortgageKeyword) == "" {
		return fmt.Errorf("mortgage keyword cannot be empty")
	}
	if strings.EqualFold(c.HOAKeyword, c.MortgageKeyword) {
		return fmt.Errorf("hoa and mortgage keywords must differ")
	}
	if c.MaxHintDistance < 0 {
		return fmt.Errorf("max hint distance cannot be negative, got %d", c.MaxHintDistance)
	}
	return nil
}

// Clone returns a copy of the configuration
func (c *MatchingConfig) Clone() *MatchingConfig {
	clone := *c
	return &clone
}

// Keyword returns the merchant keyword of a category.
func (c *MatchingConfig) Keyword(cat Category) string {
	if cat == CategoryMortgage {
		return c.MortgageKeyword
	}
	return c.HOAKeyword
}

// Keywords returns every category keyword.
func (c *MatchingConfig) Keywords() []string {
	return []string{c.HOAKeyword, c.MortgageKeyword}
}

func (c *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{HOA: %q, Mortgage: %q, MaxHintDistance: %d}",
		c.HOAKeyword, c.MortgageKeyword, c.MaxHintDistance)
}
