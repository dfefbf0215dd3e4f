package reconciler

import (
	"fmt"
	"regexp"
	"strings"

	"rent-reconciliation-service/internal/models"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// DataPreprocessor normalizes free text before matching
type DataPreprocessor struct {
	config *PreprocessingConfig
	stats  PreprocessingStats
}

// PreprocessingConfig contains configuration for data preprocessing
type PreprocessingConfig struct {
	TrimWhitespace   bool
	CollapseSpaces   bool
	DropZeroAmounts  bool
	RemoveDuplicates bool
	// NormalizeDecimalPlaces rounds bank amounts; -1 leaves them alone.
	NormalizeDecimalPlaces int
}

// PreprocessingStats counts what the preprocessor changed
type PreprocessingStats struct {
	TransactionsIn    int
	TransactionsOut   int
	ZeroAmountDropped int
	DuplicatesRemoved int
	StringsNormalized int
}

// DefaultPreprocessingConfig returns a default preprocessing configuration
func DefaultPreprocessingConfig() *PreprocessingConfig {
	return &PreprocessingConfig{
		TrimWhitespace:         true,
		CollapseSpaces:         true,
		NormalizeDecimalPlaces: -1,
	}
}

// NewDataPreprocessor creates a new data preprocessor
func NewDataPreprocessor(config *PreprocessingConfig) *DataPreprocessor {
	if config == nil {
		config = DefaultPreprocessingConfig()
	}
	return &DataPreprocessor{config: config}
}

// PreprocessTransactions returns normalized copies of the bank rows in input order.
func (dp *DataPreprocessor) PreprocessTransactions(txns []models.BankTransaction) []models.BankTransaction {
	dp.stats.TransactionsIn += len(txns)

	out := make([]models.BankTransaction, 0, len(txns))
	seen := make(map[string]bool)
	for _, t := range txns {
		t.Merchant = dp.normalizeString(t.Merchant)
		t.Description = dp.normalizeString(t.Description)
		if dp.config.NormalizeDecimalPlaces >= 0 {
			t.Amount = t.Amount.Round(int32(dp.config.NormalizeDecimalPlaces))
		}

		if dp.config.DropZeroAmounts && t.Amount.IsZero() {
			dp.stats.ZeroAmountDropped++
			continue
		}
		if dp.config.RemoveDuplicates {
			key := fmt.Sprintf("%s|%s|%s|%s", t.Date.Format(models.DateFormat),
				strings.ToLower(t.Merchant), strings.ToLower(t.Description), t.Amount.String())
			if seen[key] {
				dp.stats.DuplicatesRemoved++
				continue
			}
			seen[key] = true
		}
		out = append(out, t)
	}

	dp.stats.TransactionsOut += len(out)
	return out
}

// PreprocessStatements normalizes manager names and addresses of extracted statements.
func (dp *DataPreprocessor) PreprocessStatements(statements []models.ExtractedStatement) []models.ExtractedStatement {
	out := make([]models.ExtractedStatement, len(statements))
	for i, stmt := range statements {
		stmt.PropertyManagementName = dp.normalizeString(stmt.PropertyManagementName)
		props := make([]models.ExtractedProperty, len(stmt.Properties))
		for j, p := range stmt.Properties {
			p.Address = dp.normalizeString(p.Address)
			props[j] = p
		}
		stmt.Properties = props
		out[i] = stmt
	}
	return out
}

// normalizeString applies string normalization rules
func (dp *DataPreprocessor) normalizeString(s string) string {
	result := s
	if dp.config.TrimWhitespace {
		result = strings.TrimSpace(result)
	}
	if dp.config.CollapseSpaces {
		result = whitespaceRun.ReplaceAllString(result, " ")
	}
	if result != s {
		dp.stats.StringsNormalized++
	}
	return result
}

// GetStatistics returns what has been changed so far
func (dp *DataPreprocessor) GetStatistics() PreprocessingStats {
	return dp.stats
}
