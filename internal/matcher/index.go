package matcher

import (
	"rent-reconciliation-service/internal/models"
)

// TransactionIndex maps house-number tokens found in bank descriptions to the
// rows that carry them.
type TransactionIndex struct {
	byHouseNumber map[string][]*models.BankTransaction
	all           []*models.BankTransaction
}

// NewTransactionIndex indexes every digit run of every description.
func NewTransactionIndex(txns []models.BankTransaction) *TransactionIndex {
	idx := &TransactionIndex{
		byHouseNumber: make(map[string][]*models.BankTransaction),
		all:           make([]*models.BankTransaction, 0, len(txns)),
	}
	for i := range txns {
		txn := &txns[i]
		idx.all = append(idx.all, txn)

		seen := make(map[string]bool)
		for _, run := range digitRuns(txn.Description) {
			if seen[run] {
				continue
			}
			seen[run] = true
			idx.byHouseNumber[run] = append(idx.byHouseNumber[run], txn)
		}
	}
	return idx
}

// ByHouseNumber returns the rows whose description carries the token, in input order.
func (idx *TransactionIndex) ByHouseNumber(token string) []*models.BankTransaction {
	if token == "" {
		return nil
	}
	return idx.byHouseNumber[token]
}

// Len returns the number of indexed rows.
func (idx *TransactionIndex) Len() int {
	return len(idx.all)
}

// StatementIndex maps house-number tokens to extracted property lines.
type StatementIndex struct {
	byHouseNumber map[string][]models.ExtractedProperty
	unmatched     []models.ExtractedProperty
}

// NewStatementIndex indexes the properties of every statement. Lines without a
// house number are kept aside and never match a parameter.
func NewStatementIndex(statements []models.ExtractedStatement) *StatementIndex {
	idx := &StatementIndex{byHouseNumber: make(map[string][]models.ExtractedProperty)}
	for _, stmt := range statements {
		for _, p := range stmt.Properties {
			token, ok := HouseNumber(p.Address)
			if !ok {
				idx.unmatched = append(idx.unmatched, p)
				continue
			}
			idx.byHouseNumber[token] = append(idx.byHouseNumber[token], p)
		}
	}
	return idx
}

// ByHouseNumber returns the extracted lines for a token.
func (idx *StatementIndex) ByHouseNumber(token string) []models.ExtractedProperty {
	if token == "" {
		return nil
	}
	return idx.byHouseNumber[token]
}

// Unmatched returns extracted lines whose address had no house number.
func (idx *StatementIndex) Unmatched() []models.ExtractedProperty {
	return idx.unmatched
}
