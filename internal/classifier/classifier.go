// Package classifier sweeps bank rows that belong to no known property,
// category or manager into miscellaneous expenses.
package classifier

import (
	"sort"
	"strings"

	"rent-reconciliation-service/internal/matcher"
	"rent-reconciliation-service/internal/models"
)

// Classifier holds the known identifiers a bank row is checked against.
type Classifier struct {
	houseNumbers  []string
	keywords      []string
	managerTokens []string
}

// New builds a classifier. Manager names are reduced to their matching tokens.
func New(houseNumbers, keywords, managers []string) *Classifier {
	c := &Classifier{
		houseNumbers: dedupe(houseNumbers, false),
		keywords:     dedupe(keywords, true),
	}
	var tokens []string
	for _, m := range managers {
		tokens = append(tokens, matcher.ManagerTokens(m)...)
	}
	c.managerTokens = dedupe(tokens, true)
	return c
}

// ForRun gathers the known house numbers and managers from the current
// parameters and the extracted statements of a run.
func ForRun(params []models.PropertyParameter, statements []models.ExtractedStatement, config *matcher.MatchingConfig) *Classifier {
	if config == nil {
		config = matcher.DefaultMatchingConfig()
	}

	var houseNumbers, managers []string
	for i := range params {
		if tok, ok := matcher.HouseNumber(params[i].Address); ok {
			houseNumbers = append(houseNumbers, tok)
		}
		managers = append(managers, params[i].PropertyManagementName)
	}
	for _, stmt := range statements {
		managers = append(managers, stmt.PropertyManagementName)
		for _, p := range stmt.Properties {
			if tok, ok := matcher.HouseNumber(p.Address); ok {
				houseNumbers = append(houseNumbers, tok)
			}
		}
	}
	return New(houseNumbers, config.Keywords(), managers)
}

// IsMisc reports whether the row matches none of the known identifiers:
// no house number in its description, and neither a category keyword nor a
// manager token in its merchant.
func (c *Classifier) IsMisc(txn *models.BankTransaction) bool {
	for _, tok := range c.houseNumbers {
		if matcher.ContainsHouseNumber(txn.Description, tok) {
			return false
		}
	}
	merchant := strings.ToLower(txn.Merchant)
	for _, kw := range c.keywords {
		if strings.Contains(merchant, kw) {
			return false
		}
	}
	for _, tok := range c.managerTokens {
		if strings.Contains(merchant, tok) {
			return false
		}
	}
	return true
}

// Classify returns the miscellaneous rows in input order, each suggested under
// its raw merchant text.
func (c *Classifier) Classify(txns []models.BankTransaction) []models.MiscExpenseLog {
	var out []models.MiscExpenseLog
	for i := range txns {
		if !c.IsMisc(&txns[i]) {
			continue
		}
		out = append(out, models.MiscExpenseLog{
			DateCleared:        txns[i].Date,
			Description:        txns[i].Description,
			Amount:             txns[i].Amount,
			CategorySuggestion: txns[i].Merchant,
		})
	}
	return out
}

// HouseNumbers returns the known tokens, sorted.
func (c *Classifier) HouseNumbers() []string {
	return c.houseNumbers
}

func dedupe(values []string, fold bool) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if fold {
			v = strings.ToLower(v)
		}
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
