package matcher

import (
	"strings"
	"unicode"

	"rent-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// HouseNumber returns the leading digit run of an address. ok is false when
// the address does not start with a digit.
func HouseNumber(address string) (token string, ok bool) {
	address = strings.TrimSpace(address)
	end := 0
	for end < len(address) && address[end] >= '0' && address[end] <= '9' {
		end++
	}
	if end == 0 {
		return "", false
	}
	return address[:end], true
}

// SameProperty reports whether two addresses carry equal house-number tokens.
func SameProperty(a, b string) bool {
	ta, ok := HouseNumber(a)
	if !ok {
		return false
	}
	tb, ok := HouseNumber(b)
	return ok && ta == tb
}

// digitRuns returns every maximal run of ASCII digits in s.
func digitRuns(s string) []string {
	var runs []string
	start := -1
	for i := 0; i < len(s); i++ {
		isDigit := s[i] >= '0' && s[i] <= '9'
		switch {
		case isDigit && start < 0:
			start = i
		case !isDigit && start >= 0:
			runs = append(runs, s[start:i])
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, s[start:])
	}
	return runs
}

// ContainsHouseNumber reports whether text carries token as a whole digit run,
// so "407" is found in "HOA DUES 407 WARDS" but not in "14071".
func ContainsHouseNumber(text, token string) bool {
	if token == "" {
		return false
	}
	for _, run := range digitRuns(text) {
		if run == token {
			return true
		}
	}
	return false
}

// ContainsKeyword is a case-insensitive substring test.
func ContainsKeyword(text, keyword string) bool {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(keyword))
}

// ManagerTokens returns the case-folded full name and first word of a manager.
func ManagerTokens(manager string) []string {
	full := strings.ToLower(strings.TrimSpace(manager))
	if full == "" {
		return nil
	}
	tokens := []string{full}
	if fields := strings.FieldsFunc(full, unicode.IsSpace); len(fields) > 1 {
		tokens = append(tokens, fields[0])
	}
	return tokens
}

// ManagerMatches reports whether merchant text names the manager, either by
// its full name or by its first word.
func ManagerMatches(merchant, manager string) bool {
	text := strings.ToLower(merchant)
	for _, tok := range ManagerTokens(manager) {
		if strings.Contains(text, tok) {
			return true
		}
	}
	return false
}

// SumManagerDeposits totals every bank row whose merchant names the manager.
func SumManagerDeposits(txns []models.BankTransaction, manager string) (total decimal.Decimal, count int) {
	total = decimal.Zero
	for i := range txns {
		if ManagerMatches(txns[i].Merchant, manager) {
			total = total.Add(txns[i].Amount)
			count++
		}
	}
	return total, count
}

// Matcher attributes bank rows to property expense categories.
type Matcher struct {
	config *MatchingConfig
}

// NewMatcher creates a matcher; a nil config uses DefaultMatchingConfig.
func NewMatcher(config *MatchingConfig) *Matcher {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &Matcher{config: config}
}

// Config returns the matcher configuration.
func (m *Matcher) Config() *MatchingConfig {
	return m.config
}

// CategoryTotal sums the bank rows for a house number whose merchant names the
// category keyword, as a positive amount. An empty token yields zero.
func (m *Matcher) CategoryTotal(idx *TransactionIndex, houseNumber string, cat Category) decimal.Decimal {
	total := decimal.Zero
	keyword := m.config.Keyword(cat)
	for _, txn := range idx.ByHouseNumber(houseNumber) {
		if ContainsKeyword(txn.Merchant, keyword) {
			total = total.Add(txn.Amount)
		}
	}
	return total.Abs()
}

// PaidRent sums rent paid across every extracted property sharing the house number.
func PaidRent(idx *StatementIndex, houseNumber string) (decimal.Decimal, bool) {
	props := idx.ByHouseNumber(houseNumber)
	if len(props) == 0 {
		return decimal.Zero, false
	}
	total := decimal.Zero
	for _, p := range props {
		total = total.Add(p.RentPaid)
	}
	return total, true
}
